// Package cellindex records which shared-tier tiles lie in which map cell so
// an area can be invalidated without scanning the whole tier.
//
// Tiles at BucketZoom and deeper are filed under their ancestor tile at
// BucketZoom; shallower tiles share one "wide" bucket.
package cellindex

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/tile-gateway/internal/cache"
	"github.com/mohammed-shakir/tile-gateway/internal/cache/keys"
	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
	"github.com/mohammed-shakir/tile-gateway/internal/tilemath"
)

const (
	BucketZoom = 8
	wideBucket = "wide"
	maxLat     = 85.0511287798
	// maxBuckets bounds one lookup; larger areas need a full clear.
	maxBuckets = 4096
)

var ErrAreaTooLarge = errors.New("area spans too many index buckets")

type Index struct {
	store  cache.SetStore
	prefix string
	ttl    time.Duration
}

// New builds an index in store. ttl must cover the longest tile TTL so a
// bucket never expires before its tiles.
func New(store cache.SetStore, prefix string, ttl time.Duration) *Index {
	return &Index{store: store, prefix: prefix, ttl: ttl}
}

func bucket(k keys.Tile) string {
	if k.Z < BucketZoom {
		return wideBucket
	}
	shift := uint(k.Z - BucketZoom)
	return strconv.Itoa(k.X>>shift) + "/" + strconv.Itoa(k.Y>>shift)
}

func member(k keys.Tile) string {
	return fmt.Sprintf("%d/%d/%d/%s", k.Z, k.X, k.Y, k.Endpoint)
}

func parseMember(s string) (keys.Tile, bool) {
	parts := strings.SplitN(s, "/", 4)
	if len(parts) != 4 {
		return keys.Tile{}, false
	}
	var v [3]int
	for i := range 3 {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return keys.Tile{}, false
		}
		v[i] = n
	}
	return keys.TileKey(parts[3], v[0], v[1], v[2]), true
}

func (i *Index) Add(ctx context.Context, k keys.Tile) error {
	if err := i.store.SAdd(ctx, keys.IndexKey(i.prefix, bucket(k)), i.ttl, member(k)); err != nil {
		return fmt.Errorf("index %s: %w", k, err)
	}
	return nil
}

// buckets lists the buckets that can hold a tile intersecting bb.
func buckets(bb model.BoundingBox) ([]string, error) {
	bb.MinLat = max(bb.MinLat, -maxLat)
	bb.MaxLat = min(bb.MaxLat, maxLat)
	minX, minY, maxX, maxY := tilemath.Range(bb, BucketZoom)
	last := 1<<BucketZoom - 1
	minX, maxX = max(minX, 0), min(maxX, last)
	minY, maxY = max(minY, 0), min(maxY, last)
	if n := (maxX - minX + 1) * (maxY - minY + 1); n > maxBuckets {
		return nil, fmt.Errorf("%w: %d", ErrAreaTooLarge, n)
	}
	out := []string{wideBucket}
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			out = append(out, strconv.Itoa(x)+"/"+strconv.Itoa(y))
		}
	}
	return out, nil
}

// Lookup returns the indexed tiles intersecting bb.
func (i *Index) Lookup(ctx context.Context, bb model.BoundingBox) ([]keys.Tile, error) {
	bs, err := buckets(bb)
	if err != nil {
		return nil, err
	}
	var out []keys.Tile
	seen := make(map[keys.Tile]struct{})
	for _, b := range bs {
		members, err := i.store.SMembers(ctx, keys.IndexKey(i.prefix, b))
		if err != nil {
			return out, fmt.Errorf("index lookup %s: %w", b, err)
		}
		for _, m := range members {
			k, ok := parseMember(m)
			if !ok {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			if tilemath.ToBBoxWGS84(model.TileCoordinate{Z: k.Z, X: k.X, Y: k.Y}).Intersects(bb) {
				out = append(out, k)
			}
		}
	}
	return out, nil
}

// Remove drops tiles from their buckets.
func (i *Index) Remove(ctx context.Context, tiles []keys.Tile) error {
	grouped := make(map[string][]string)
	for _, k := range tiles {
		b := bucket(k)
		grouped[b] = append(grouped[b], member(k))
	}
	var errs []error
	for b, ms := range grouped {
		if err := i.store.SRem(ctx, keys.IndexKey(i.prefix, b), ms...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
