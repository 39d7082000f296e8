package tilecache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/tile-gateway/internal/cache/keys"
	"github.com/mohammed-shakir/tile-gateway/internal/cache/redisstore"
	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
	"github.com/mohammed-shakir/tile-gateway/internal/tilemath"
)

func newShared(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestLocalOnly_GetSetLen(t *testing.T) {
	c := New(Config{Size: 2, TTL: time.Minute}, nil, nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, keys.TileKey("latvia", 10, 1, 1))
	assert.False(t, ok)

	c.Set(ctx, keys.TileKey("latvia", 10, 1, 1), []byte("a"), 0)
	c.Set(ctx, keys.TileKey("latvia", 10, 1, 2), []byte("b"), 0)
	c.Set(ctx, keys.TileKey("latvia", 10, 1, 3), []byte("c"), 0)
	assert.Equal(t, 2, c.Len(), "size bound evicts the oldest entry")

	_, ok = c.Get(ctx, keys.TileKey("latvia", 10, 1, 1))
	assert.False(t, ok)
	b, ok := c.Get(ctx, keys.TileKey("latvia", 10, 1, 3))
	assert.True(t, ok)
	assert.Equal(t, []byte("c"), b)

	c.Clear(ctx)
	assert.Equal(t, 0, c.Len())
}

func TestLocalTTL(t *testing.T) {
	c := New(Config{Size: 10, TTL: 20 * time.Millisecond}, nil, nil)
	ctx := context.Background()
	c.Set(ctx, keys.TileKey("latvia", 1, 0, 0), []byte("x"), 0)
	time.Sleep(60 * time.Millisecond)
	_, ok := c.Get(ctx, keys.TileKey("latvia", 1, 0, 0))
	assert.False(t, ok)
}

func TestSharedTier_BackfillsLocal(t *testing.T) {
	rc, mr := newShared(t)
	ctx := context.Background()

	writer := New(Config{Size: 10, TTL: time.Minute, Prefix: "tg"}, rc, nil)
	writer.Set(ctx, keys.TileKey("latvia", 10, 580, 316), []byte("png"), 0)
	assert.True(t, mr.Exists("tg:tile:latvia:10/580/316"))
	assert.Equal(t, time.Minute, mr.TTL("tg:tile:latvia:10/580/316"))

	reader := New(Config{Size: 10, TTL: time.Minute, Prefix: "tg"}, rc, nil)
	assert.Equal(t, 0, reader.Len())
	b, ok := reader.Get(ctx, keys.TileKey("latvia", 10, 580, 316))
	require.True(t, ok)
	assert.Equal(t, []byte("png"), b)
	assert.Equal(t, 1, reader.Len())
}

func TestDeleteEndpoint(t *testing.T) {
	rc, mr := newShared(t)
	ctx := context.Background()
	c := New(Config{Size: 10, TTL: time.Minute, Prefix: "tg"}, rc, nil)

	c.Set(ctx, keys.TileKey("latvia", 1, 0, 0), []byte("a"), 0)
	c.Set(ctx, keys.TileKey("latvia", 2, 0, 0), []byte("b"), 0)
	c.Set(ctx, keys.TileKey("latvia_webmercator", 1, 0, 0), []byte("c"), 0)

	assert.Equal(t, 2, c.DeleteEndpoint(ctx, "latvia"))
	assert.Equal(t, 1, c.Len())
	assert.False(t, mr.Exists("tg:tile:latvia:1/0/0"))
	assert.True(t, mr.Exists("tg:tile:latvia_webmercator:1/0/0"))
}

func TestClear_RemovesSharedTier(t *testing.T) {
	rc, mr := newShared(t)
	ctx := context.Background()
	c := New(Config{Size: 10, TTL: time.Minute, Prefix: "tg"}, rc, nil)

	c.Set(ctx, keys.TileKey("latvia", 1, 0, 0), []byte("a"), 0)
	require.NoError(t, mr.Set("unrelated", "keep"))

	c.Clear(ctx)
	_, ok := c.Get(ctx, keys.TileKey("latvia", 1, 0, 0))
	assert.False(t, ok)
	assert.True(t, mr.Exists("unrelated"))
}

func TestDeleteWhere(t *testing.T) {
	c := New(Config{Size: 10, TTL: time.Minute}, nil, nil)
	ctx := context.Background()
	for z := 1; z <= 4; z++ {
		c.Set(ctx, keys.TileKey("latvia", z, 0, 0), []byte{byte(z)}, 0)
	}
	removed := c.DeleteWhere(ctx, func(k keys.Tile) bool { return k.Z >= 3 })
	assert.Len(t, removed, 2)
	assert.Equal(t, 2, c.Len())
}

func TestDeleteWhere_RemovesSharedCopies(t *testing.T) {
	rc, mr := newShared(t)
	ctx := context.Background()
	c := New(Config{Size: 10, TTL: time.Minute, Prefix: "tg"}, rc, nil)

	c.Set(ctx, keys.TileKey("latvia", 5, 1, 1), []byte("a"), 0)
	c.Set(ctx, keys.TileKey("latvia", 6, 1, 1), []byte("b"), 0)

	c.DeleteWhere(ctx, func(k keys.Tile) bool { return k.Z == 5 })
	assert.False(t, mr.Exists("tg:tile:latvia:5/1/1"))
	assert.True(t, mr.Exists("tg:tile:latvia:6/1/1"))
}

func TestSet_CustomTTL(t *testing.T) {
	rc, mr := newShared(t)
	ctx := context.Background()
	c := New(Config{Size: 10, TTL: time.Minute, Prefix: "tg"}, rc, nil)

	c.Set(ctx, keys.TileKey("latvia", 3, 1, 1), []byte("hot"), time.Hour)
	assert.Equal(t, time.Hour, mr.TTL("tg:tile:latvia:3/1/1"))
}

func tileAt(endpoint string, lon, lat float64, z int) keys.Tile {
	tc := tilemath.TileAt(lon, lat, z)
	return keys.TileKey(endpoint, tc.Z, tc.X, tc.Y)
}

func TestDeleteArea_ReachesSharedTierThroughIndex(t *testing.T) {
	rc, mr := newShared(t)
	ctx := context.Background()

	riga := tileAt("latvia", 24.1, 56.95, 12)
	daugavpils := tileAt("latvia", 26.5, 55.87, 12)
	other := tileAt("latvia_webmercator", 24.1, 56.95, 12)
	coarse := tileAt("latvia", 24.1, 56.95, 3)

	writer := New(Config{Size: 10, TTL: time.Minute, Prefix: "tg"}, rc, nil)
	for _, k := range []keys.Tile{riga, daugavpils, other, coarse} {
		writer.Set(ctx, k, []byte("png"), 0)
	}

	// A second instance holds nothing locally.
	c := New(Config{Size: 10, TTL: time.Minute, Prefix: "tg"}, rc, nil)
	removed := c.DeleteArea(ctx, "latvia", model.BoundingBox{MinLon: 24, MinLat: 56.9, MaxLon: 24.2, MaxLat: 57})

	assert.ElementsMatch(t, []keys.Tile{riga, coarse}, removed)
	assert.False(t, mr.Exists(riga.Remote("tg")))
	assert.False(t, mr.Exists(coarse.Remote("tg")))
	assert.True(t, mr.Exists(daugavpils.Remote("tg")))
	assert.True(t, mr.Exists(other.Remote("tg")))
}

func TestDeleteArea_AllEndpoints(t *testing.T) {
	rc, mr := newShared(t)
	ctx := context.Background()
	c := New(Config{Size: 10, TTL: time.Minute, Prefix: "tg"}, rc, nil)

	a := tileAt("latvia", 24.1, 56.95, 12)
	b := tileAt("latvia_webmercator", 24.1, 56.95, 12)
	c.Set(ctx, a, []byte("a"), 0)
	c.Set(ctx, b, []byte("b"), 0)

	removed := c.DeleteArea(ctx, "", model.BoundingBox{MinLon: 24, MinLat: 56.9, MaxLon: 24.2, MaxLat: 57})
	assert.ElementsMatch(t, []keys.Tile{a, b}, removed)
	assert.Equal(t, 0, c.Len())
	assert.False(t, mr.Exists(b.Remote("tg")))
}

func TestDeleteArea_LocalOnly(t *testing.T) {
	c := New(Config{Size: 10, TTL: time.Minute}, nil, nil)
	ctx := context.Background()
	riga := tileAt("latvia", 24.1, 56.95, 12)
	c.Set(ctx, riga, []byte("a"), 0)
	c.Set(ctx, tileAt("latvia", 26.5, 55.87, 12), []byte("b"), 0)

	removed := c.DeleteArea(ctx, "latvia", model.BoundingBox{MinLon: 24, MinLat: 56.9, MaxLon: 24.2, MaxLat: 57})
	assert.Equal(t, []keys.Tile{riga}, removed)
	assert.Equal(t, 1, c.Len())
}

func TestClear_RemovesAreaIndex(t *testing.T) {
	rc, mr := newShared(t)
	ctx := context.Background()
	c := New(Config{Size: 10, TTL: time.Minute, Prefix: "tg"}, rc, nil)
	c.Set(ctx, tileAt("latvia", 24.1, 56.95, 12), []byte("a"), 0)
	require.NotEmpty(t, mr.Keys())

	c.Clear(ctx)
	assert.Empty(t, mr.Keys())
}

type failingShared struct{}

func (failingShared) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}

func (failingShared) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}

func (failingShared) Del(context.Context, ...string) error {
	return errors.New("down")
}

func (failingShared) DeleteByPrefix(context.Context, string) (int, error) {
	return 0, errors.New("down")
}

func TestSharedFailuresDegradeToLocal(t *testing.T) {
	c := New(Config{Size: 10, TTL: time.Minute}, failingShared{}, nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, keys.TileKey("latvia", 1, 0, 0))
	assert.False(t, ok)

	c.Set(ctx, keys.TileKey("latvia", 1, 0, 0), []byte("a"), 0)
	b, ok := c.Get(ctx, keys.TileKey("latvia", 1, 0, 0))
	assert.True(t, ok)
	assert.Equal(t, []byte("a"), b)

	c.Clear(ctx)
	assert.Equal(t, 0, c.Len())
}
