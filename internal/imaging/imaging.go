// Package imaging normalizes upstream tile images to 256x256 PNG.
package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/draw"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	"image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

// TileSize is the edge of a client tile in pixels.
const TileSize = 256

// Action records what Normalize did to the image.
type Action string

const (
	Cropped     Action = "crop"
	Resized     Action = "resize"
	Reencoded   Action = "reencode"
	Undecodable Action = "undecodable"
)

var encoder = png.Encoder{CompressionLevel: png.DefaultCompression}

// Normalize turns an upstream tile into a 256x256 PNG. A 512x512 supertile
// is cropped to quadrant (qx, qy); any other size is resampled. Bytes that
// cannot be decoded are returned untouched.
func Normalize(data []byte, qx, qy int) ([]byte, Action) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, Undecodable
	}

	b := src.Bounds()
	var out image.Image
	action := Reencoded
	switch {
	case b.Dx() == 2*TileSize && b.Dy() == 2*TileSize:
		qx = clamp(qx, 0, 1)
		qy = clamp(qy, 0, 1)
		r := image.Rect(0, 0, TileSize, TileSize).Add(b.Min).Add(image.Pt(qx*TileSize, qy*TileSize))
		dst := image.NewNRGBA(image.Rect(0, 0, TileSize, TileSize))
		draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
		out, action = dst, Cropped
	case b.Dx() != TileSize || b.Dy() != TileSize:
		dst := image.NewNRGBA(image.Rect(0, 0, TileSize, TileSize))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
		out, action = dst, Resized
	default:
		out = src
	}

	var buf bytes.Buffer
	if err := encoder.Encode(&buf, out); err != nil {
		return data, Undecodable
	}
	return buf.Bytes(), action
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

const transparentPNGBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

var transparentPNG = mustDecode(transparentPNGBase64)

func mustDecode(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// TransparentPNG returns a copy of the 1x1 fully transparent tile served for
// requests outside upstream coverage.
func TransparentPNG() []byte {
	return bytes.Clone(transparentPNG)
}
