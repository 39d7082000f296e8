package projection

import "fmt"

var builtinProj4 = map[int]string{
	3857: "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +wktext +no_defs",
	3059: "+proj=tmerc +lat_0=0 +lon_0=24 +k=0.9996 +x_0=500000 +y_0=-6000000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	4326: "+proj=longlat +datum=WGS84 +no_defs",
	4258: "+proj=longlat +ellps=GRS80 +no_defs",
}

// BuiltinProj4 returns the bundled definition for code. ETRS89 and WGS84
// UTM zones (258xx, 326xx, 327xx) are generated.
func BuiltinProj4(code int) (string, bool) {
	if def, ok := builtinProj4[code]; ok {
		return def, true
	}
	switch {
	case code >= 25801 && code <= 25860:
		return fmt.Sprintf("+proj=utm +zone=%d +ellps=GRS80 +units=m +no_defs", code-25800), true
	case code >= 32601 && code <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", code-32600), true
	case code >= 32701 && code <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", code-32700), true
	}
	return "", false
}
