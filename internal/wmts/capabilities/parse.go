package capabilities

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrNotFound = errors.New("identifier not found in capabilities")

// Elements are matched by local name so documents that omit or alias the
// wmts/ows prefixes still parse.
type document struct {
	Contents struct {
		Layers         []layerXML         `xml:"Layer"`
		TileMatrixSets []tileMatrixSetXML `xml:"TileMatrixSet"`
	} `xml:"Contents"`
}

type layerXML struct {
	Identifier string `xml:"Identifier"`
	Title      string `xml:"Title"`
	Abstract   string `xml:"Abstract"`
	WGS84BBox  *struct {
		LowerCorner string `xml:"LowerCorner"`
		UpperCorner string `xml:"UpperCorner"`
	} `xml:"WGS84BoundingBox"`
	Links []struct {
		TileMatrixSet string `xml:"TileMatrixSet"`
	} `xml:"TileMatrixSetLink"`
	Formats []string `xml:"Format"`
	Styles  []struct {
		Identifier string `xml:"Identifier"`
	} `xml:"Style"`
}

type tileMatrixSetXML struct {
	Identifier        string `xml:"Identifier"`
	SupportedCRS      string `xml:"SupportedCRS"`
	WellKnownScaleSet string `xml:"WellKnownScaleSet"`
	Matrices          []struct {
		Identifier       string `xml:"Identifier"`
		ScaleDenominator string `xml:"ScaleDenominator"`
		TopLeftCorner    string `xml:"TopLeftCorner"`
		TileWidth        int    `xml:"TileWidth"`
		TileHeight       int    `xml:"TileHeight"`
		MatrixWidth      int    `xml:"MatrixWidth"`
		MatrixHeight     int    `xml:"MatrixHeight"`
	} `xml:"TileMatrix"`
}

func decode(raw []byte) (*document, error) {
	var doc document
	if err := xml.NewDecoder(bytes.NewReader(raw)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode capabilities: %w", err)
	}
	return &doc, nil
}

// ParseTileMatrixSet extracts the matrix set with the given identifier.
// Matrices whose identifier carries no integer zoom suffix are skipped.
func ParseTileMatrixSet(raw []byte, id string) (*TileMatrixSet, error) {
	doc, err := decode(raw)
	if err != nil {
		return nil, err
	}
	for _, s := range doc.Contents.TileMatrixSets {
		if strings.TrimSpace(s.Identifier) != id {
			continue
		}
		crs := strings.TrimSpace(s.SupportedCRS)
		out := &TileMatrixSet{
			Identifier:        id,
			SupportedCRS:      crs,
			WellKnownScaleSet: strings.TrimSpace(s.WellKnownScaleSet),
			Matrices:          make(map[int]TileMatrix, len(s.Matrices)),
		}
		if code, ok := ParseEPSG(crs); ok {
			out.EPSG = code
		}
		for _, m := range s.Matrices {
			ident := strings.TrimSpace(m.Identifier)
			zoom, ok := ZoomFromIdentifier(ident)
			if !ok {
				continue
			}
			scale, err := strconv.ParseFloat(strings.TrimSpace(m.ScaleDenominator), 64)
			if err != nil {
				return nil, fmt.Errorf("matrix %q scale denominator: %w", ident, err)
			}
			corner, err := parsePair(m.TopLeftCorner)
			if err != nil {
				return nil, fmt.Errorf("matrix %q top left corner: %w", ident, err)
			}
			out.Matrices[zoom] = TileMatrix{
				Identifier:       ident,
				ScaleDenominator: scale,
				TopLeftCorner:    corner,
				TileWidth:        m.TileWidth,
				TileHeight:       m.TileHeight,
				MatrixWidth:      m.MatrixWidth,
				MatrixHeight:     m.MatrixHeight,
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("tile matrix set %q: %w", id, ErrNotFound)
}

// ParseLayerInfo extracts the layer with the given identifier. Title
// defaults to the identifier.
func ParseLayerInfo(raw []byte, id string) (*LayerInfo, error) {
	doc, err := decode(raw)
	if err != nil {
		return nil, err
	}
	for _, l := range doc.Contents.Layers {
		if strings.TrimSpace(l.Identifier) != id {
			continue
		}
		out := &LayerInfo{
			Identifier: id,
			Title:      strings.TrimSpace(l.Title),
			Abstract:   strings.TrimSpace(l.Abstract),
		}
		if out.Title == "" {
			out.Title = id
		}
		if l.WGS84BBox != nil {
			lower, errL := parsePair(l.WGS84BBox.LowerCorner)
			upper, errU := parsePair(l.WGS84BBox.UpperCorner)
			if errL == nil && errU == nil {
				out.WGS84BoundingBox = &[4]float64{lower[0], lower[1], upper[0], upper[1]}
			}
		}
		for _, link := range l.Links {
			if v := strings.TrimSpace(link.TileMatrixSet); v != "" {
				out.TileMatrixSetLink = append(out.TileMatrixSetLink, v)
			}
		}
		for _, f := range l.Formats {
			if v := strings.TrimSpace(f); v != "" {
				out.Formats = append(out.Formats, v)
			}
		}
		for _, s := range l.Styles {
			if v := strings.TrimSpace(s.Identifier); v != "" {
				out.Styles = append(out.Styles, v)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("layer %q: %w", id, ErrNotFound)
}

// ParseEPSG reads the numeric code out of a CRS reference. The colon form
// ("urn:ogc:def:crs:EPSG::3059", "EPSG:3857") takes the first integer token
// after the literal EPSG; the OGC URL form takes its last path segment.
func ParseEPSG(crs string) (int, bool) {
	crs = strings.TrimSpace(crs)
	if crs == "" {
		return 0, false
	}
	if i := strings.Index(crs, "/def/crs/EPSG/"); i >= 0 {
		segs := strings.Split(strings.TrimRight(crs[i:], "/"), "/")
		if n, err := strconv.Atoi(segs[len(segs)-1]); err == nil {
			return n, true
		}
		return 0, false
	}
	tokens := strings.Split(crs, ":")
	for i, tok := range tokens {
		if !strings.EqualFold(tok, "EPSG") {
			continue
		}
		for _, rest := range tokens[i+1:] {
			if n, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
				return n, true
			}
		}
		return 0, false
	}
	return 0, false
}

// ZoomFromIdentifier returns the integer after the last colon of a matrix
// identifier ("LKS_LVM:10" -> 10); bare integers are accepted.
func ZoomFromIdentifier(ident string) (int, bool) {
	if i := strings.LastIndex(ident, ":"); i >= 0 {
		ident = ident[i+1:]
	}
	n, err := strconv.Atoi(strings.TrimSpace(ident))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func parsePair(s string) ([2]float64, error) {
	f := strings.Fields(s)
	if len(f) != 2 {
		return [2]float64{}, fmt.Errorf("expected 2 numbers, got %q", s)
	}
	a, err := strconv.ParseFloat(f[0], 64)
	if err != nil {
		return [2]float64{}, fmt.Errorf("parse %q: %w", f[0], err)
	}
	b, err := strconv.ParseFloat(f[1], 64)
	if err != nil {
		return [2]float64{}, fmt.Errorf("parse %q: %w", f[1], err)
	}
	return [2]float64{a, b}, nil
}
