// Package ogc builds WMTS KVP requests.
package ogc

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const wmtsVersion = "1.0.0"

// GetTileRequest holds the KVP parameters of a WMTS GetTile call.
type GetTileRequest struct {
	Layer         string
	Style         string
	TileMatrixSet string
	Format        string
	TileMatrix    string
	TileCol       int
	TileRow       int
	AppID         string
}

var (
	keepColon      = strings.NewReplacer("%3A", ":", "+", "%20")
	keepColonSlash = strings.NewReplacer("%3A", ":", "%2F", "/", "+", "%20")
)

// escapeIdentifier percent-encodes a WMTS identifier, leaving ':' intact
// because servers match "prefix:zoom" and "workspace:layer" literally.
func escapeIdentifier(s string) string {
	return keepColon.Replace(url.QueryEscape(s))
}

func escapeValue(s string) string {
	return keepColonSlash.Replace(url.QueryEscape(s))
}

// BuildGetTileQuery encodes r in the fixed parameter order upstream
// servers and their caches expect.
func BuildGetTileQuery(r GetTileRequest) string {
	var b strings.Builder
	add := func(k, v string) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	add("layer", escapeIdentifier(r.Layer))
	add("style", escapeValue(r.Style))
	add("tilematrixset", escapeValue(r.TileMatrixSet))
	add("Service", "WMTS")
	add("Request", "GetTile")
	add("Version", wmtsVersion)
	add("Format", escapeValue(r.Format))
	add("TileMatrix", escapeIdentifier(r.TileMatrix))
	add("TileCol", strconv.Itoa(r.TileCol))
	add("TileRow", strconv.Itoa(r.TileRow))
	if r.AppID != "" {
		add("appid", escapeValue(r.AppID))
	}
	return b.String()
}

// GetTileURL appends the GetTile query to base, keeping any query the base
// already carries.
func GetTileURL(base string, r GetTileRequest) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse wmts url: %w", err)
	}
	q := BuildGetTileQuery(r)
	if u.RawQuery != "" {
		q = u.RawQuery + "&" + q
	}
	u.RawQuery = q
	return u.String(), nil
}

// GetCapabilitiesURL adds the GetCapabilities KVP parameters to base.
func GetCapabilitiesURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse wmts url: %w", err)
	}
	q := u.Query()
	q.Set("SERVICE", "WMTS")
	q.Set("REQUEST", "GetCapabilities")
	q.Set("VERSION", wmtsVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
