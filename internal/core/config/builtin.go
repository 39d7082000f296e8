package config

const lvmWMTS = "https://lvmgeoproxy01.lvm.lv/wmts_b6948e305fb9446985a41b2aee54e07d/wmts"

// Builtin returns the registry shipped with the gateway: the Latvian
// topographic service in its native LKS_LVM grid and its Web-Mercator grid,
// plus generic static systems.
func Builtin() *Registry {
	return &Registry{
		Service:         "tile-gateway",
		DefaultEndpoint: "latvia_webmercator",
		CoordinateSystems: []CoordinateSystem{
			{
				ID:               "LKS_LVM",
				Name:             "LKS_LVM",
				Description:      "Latvia TM coordinate system (dynamic from WMTS)",
				Bounds:           Bounds{MinLon: 25.1, MinLat: 55.6, MaxLon: 32.3, MaxLat: 58.1},
				TileMatrixPrefix: "LKS_LVM",
				MinZoom:          7,
				MaxZoom:          18,
				LimitTable:       "LKS_LVM",
				Dynamic: &DynamicSource{
					CapabilitiesURL: lvmWMTS,
					TileMatrixSet:   "LKS_LVM",
					Layer:           "public:Topo10DTM",
				},
				Static: &StaticFallback{EPSG: 3059},
				// the advertised layer bbox is wider than what the server renders
				CoverageOverride: &Bounds{MinLon: 25.1, MinLat: 55.6, MaxLon: 32.3, MaxLat: 58.1},
			},
			{
				ID:          "WebMercatorQuad",
				Name:        "WebMercatorQuad",
				Description: "Web Mercator Quad (standard web mapping)",
				Bounds:      Bounds{MinLon: 20, MinLat: 55, MaxLon: 29, MaxLat: 59},
				MinZoom:     1,
				MaxZoom:     18,
				Passthrough: true,
				Dynamic: &DynamicSource{
					CapabilitiesURL: lvmWMTS,
					TileMatrixSet:   "WebMercatorQuad",
					Layer:           "public:Topo10DTM",
				},
				Static: &StaticFallback{EPSG: 3857},
			},
			{
				ID:               "EPSG:3857",
				Name:             "Web Mercator",
				Description:      "Web Mercator projection used by most web maps",
				Bounds:           Bounds{MinLon: -180, MinLat: -85.0511, MaxLon: 180, MaxLat: 85.0511},
				TileMatrixPrefix: "EPSG:3857",
				MaxZoom:          20,
				LimitTable:       "LKS_LVM",
				Static: &StaticFallback{
					EPSG:    3857,
					OriginX: -20037508.342789244,
					OriginY: 20037508.342789244,
				},
			},
			{
				ID:               "EPSG:4326",
				Name:             "WGS84",
				Description:      "WGS84 Geographic coordinate system",
				Bounds:           Bounds{MinLon: -180, MinLat: -90, MaxLon: 180, MaxLat: 90},
				TileMatrixPrefix: "EPSG:4326",
				MaxZoom:          20,
				LimitTable:       "LKS_LVM",
				Static:           &StaticFallback{EPSG: 4326, OriginX: -180, OriginY: 90},
			},
			{
				ID:               "EPSG:25832",
				Name:             "ETRS89 / UTM zone 32N",
				Description:      "European UTM zone 32N",
				Bounds:           Bounds{MinLon: 5, MinLat: 47, MaxLon: 15, MaxLat: 55},
				TileMatrixPrefix: "EPSG:25832",
				MaxZoom:          20,
				LimitTable:       "LKS_LVM",
				Static:           &StaticFallback{EPSG: 25832, OriginX: 166021.44, OriginY: 6500000},
			},
		},
		Endpoints: []Endpoint{
			{
				Name:             "latvia",
				URL:              lvmWMTS,
				Layer:            "public:Topo10DTM",
				CoordinateSystem: "LKS_LVM",
				AppID:            "lvmgeo.lvm.lv/",
				Style:            "raster",
				Format:           "image/vnd.jpeg-png8",
			},
			{
				Name:             "latvia_webmercator",
				URL:              lvmWMTS,
				Layer:            "public:Topo10DTM",
				CoordinateSystem: "WebMercatorQuad",
				AppID:            "lvmgeo.lvm.lv/",
				Style:            "raster",
				Format:           "image/vnd.jpeg-png8",
			},
		},
	}
}
