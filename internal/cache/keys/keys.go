// Package keys derives cache keys for served tiles.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const maxSegmentLen = 64

// Tile identifies a client tile served through one endpoint.
type Tile struct {
	Endpoint string
	Z, X, Y  int
}

// TileKey is the cache key of a client tile.
func TileKey(endpoint string, z, x, y int) Tile {
	return Tile{Endpoint: endpoint, Z: z, X: x, Y: y}
}

// String renders the key as "{endpoint}-{z}-{x}-{y}".
func (t Tile) String() string {
	return fmt.Sprintf("%s-%d-%d-%d", t.Endpoint, t.Z, t.X, t.Y)
}

// Remote is the key used in the shared tier, namespaced under prefix.
func (t Tile) Remote(prefix string) string {
	return fmt.Sprintf("%s%d/%d/%d", EndpointPrefix(prefix, t.Endpoint), t.Z, t.X, t.Y)
}

// EndpointPrefix matches every shared-tier key of endpoint. Endpoint names
// never contain ':' after sanitizing, so one prefix cannot match another
// endpoint's keys.
func EndpointPrefix(prefix, endpoint string) string {
	return TilePrefix(prefix) + segment(endpoint) + ":"
}

// TilePrefix matches every shared-tier tile key.
func TilePrefix(prefix string) string {
	if prefix == "" {
		return "tile:"
	}
	return prefix + ":tile:"
}

// IndexKey names one bucket of the shared-tier area index.
func IndexKey(prefix, bucket string) string {
	return IndexPrefix(prefix) + bucket
}

// IndexPrefix matches every area index bucket.
func IndexPrefix(prefix string) string {
	if prefix == "" {
		return "idx:"
	}
	return prefix + ":idx:"
}

func segment(s string) string {
	safe := sanitize(strings.TrimSpace(s))
	if len(safe) > maxSegmentLen {
		safe = fmt.Sprintf("%s~%016x", safe[:maxSegmentLen], xxhash.Sum64String(s))
	}
	return safe
}

func sanitize(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// ':' and non-ASCII included
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
