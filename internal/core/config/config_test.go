package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
)

func TestBuiltin_Finalizes(t *testing.T) {
	reg, err := LoadRegistry("", "")
	require.NoError(t, err)

	assert.Equal(t, "latvia_webmercator", reg.DefaultEndpoint)
	assert.Equal(t, []string{"latvia", "latvia_webmercator"}, reg.EndpointNames())

	ep, err := reg.Endpoint("")
	require.NoError(t, err)
	assert.Equal(t, "WebMercatorQuad", ep.CoordinateSystem)

	cs, err := reg.CoordinateSystem("LKS_LVM")
	require.NoError(t, err)
	assert.Equal(t, 7, cs.MinZoom)
	assert.Equal(t, 18, cs.MaxZoom)
	assert.Equal(t, 3059, cs.EPSG())
	assert.Equal(t, 512, cs.Static.TileSize)
	assert.Equal(t, 10, cs.Static.DefaultZoom)
	require.NotNil(t, cs.CoverageOverride)

	wm, err := reg.CoordinateSystem("WebMercatorQuad")
	require.NoError(t, err)
	assert.True(t, wm.Passthrough)
}

func TestRegistry_UnknownLookups(t *testing.T) {
	reg, err := LoadRegistry("", "")
	require.NoError(t, err)

	_, err = reg.Endpoint("nope")
	assert.True(t, errors.Is(err, model.ErrUnknownEndpoint))

	_, err = reg.CoordinateSystem("EPSG:2154")
	assert.True(t, errors.Is(err, model.ErrUnknownCoordinateSystem))
}

func TestLoadRegistry_DefaultEndpointOverride(t *testing.T) {
	reg, err := LoadRegistry("", "latvia")
	require.NoError(t, err)
	ep, err := reg.Endpoint("")
	require.NoError(t, err)
	assert.Equal(t, "latvia", ep.Name)

	_, err = LoadRegistry("", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUnknownEndpoint))
}

const yamlRegistry = `
default_endpoint: local
coordinate_systems:
  - id: LOCAL_TM
    name: Local TM
    bounds: {min_lon: 20, min_lat: 55, max_lon: 29, max_lat: 59}
    tile_matrix_prefix: LOCAL
    min_zoom: 5
    max_zoom: 12
    limit_table: LKS_LVM
    static:
      epsg: 3059
      origin_x: -5120900
      origin_y: 3998100
      scales:
        - {zoom: 8, denominator: 1000000}
        - {zoom: 10, denominator: 250000}
endpoints:
  - name: local
    url: http://wmts.example.com/wmts
    layer: "public:Orto"
    coordinate_system: LOCAL_TM
    transparent_outside_coverage: true
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadRegistry_YAML(t *testing.T) {
	reg, err := LoadRegistry(writeFile(t, "gateway.yaml", yamlRegistry), "")
	require.NoError(t, err)

	ep, err := reg.Endpoint("local")
	require.NoError(t, err)
	assert.Equal(t, "public:Orto", ep.Layer)
	assert.Equal(t, "raster", ep.Style)
	assert.Equal(t, "image/vnd.jpeg-png8", ep.Format)
	assert.True(t, ep.TransparentOutsideCoverage)

	cs, err := reg.CoordinateSystem("LOCAL_TM")
	require.NoError(t, err)
	assert.Equal(t, 12, cs.MaxZoom)
	require.NotNil(t, cs.Static)
	assert.InDelta(t, -5120900, cs.Static.OriginX, 1e-9)
	assert.Len(t, cs.Static.Scales, 2)
	assert.Equal(t, 512, cs.Static.TileSize)
	assert.Nil(t, cs.Dynamic)
}

func TestLoadRegistry_Invalid(t *testing.T) {
	cases := map[string]string{
		"dangling coordinate system": `
default_endpoint: a
coordinate_systems:
  - {id: X, name: X, bounds: {min_lon: 0, min_lat: 0, max_lon: 1, max_lat: 1}, passthrough: true}
endpoints:
  - {name: a, url: "http://h/wmts", layer: l, coordinate_system: Y}
`,
		"inverted bounds": `
default_endpoint: a
coordinate_systems:
  - {id: X, name: X, bounds: {min_lon: 5, min_lat: 0, max_lon: 1, max_lat: 1}, passthrough: true}
endpoints:
  - {name: a, url: "http://h/wmts", layer: l, coordinate_system: X}
`,
		"no projection source": `
default_endpoint: a
coordinate_systems:
  - {id: X, name: X, bounds: {min_lon: 0, min_lat: 0, max_lon: 1, max_lat: 1}}
endpoints:
  - {name: a, url: "http://h/wmts", layer: l, coordinate_system: X}
`,
		"bad url": `
default_endpoint: a
coordinate_systems:
  - {id: X, name: X, bounds: {min_lon: 0, min_lat: 0, max_lon: 1, max_lat: 1}, passthrough: true}
endpoints:
  - {name: a, url: "not a url", layer: l, coordinate_system: X}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRegistry(writeFile(t, "gateway.yaml", body), "")
			assert.Error(t, err)
		})
	}

	_, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)
}

func TestStaticFallback_Scale(t *testing.T) {
	s := &StaticFallback{
		DefaultZoom: 10,
		Scales:      []ScaleEntry{{Zoom: 8, Denominator: 1e6}, {Zoom: 10, Denominator: 250000}},
	}
	got, ok := s.Scale(8)
	assert.True(t, ok)
	assert.Equal(t, 1e6, got)

	got, _ = s.Scale(14)
	assert.Equal(t, 250000.0, got, "missing zoom uses the default entry")

	s.DefaultZoom = 3
	got, _ = s.Scale(7)
	assert.Equal(t, 1e6, got, "without a default entry the nearest zoom wins")

	_, ok = (&StaticFallback{}).Scale(10)
	assert.False(t, ok)
	var nilFallback *StaticFallback
	_, ok = nilFallback.Scale(10)
	assert.False(t, ok)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CACHE_SIZE", "42")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("CACHE_TTL_HOT", "6h")
	t.Setenv("CRS_INFO_ENABLED", "no")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("UPSTREAM_TIMEOUT", "garbage")

	c := FromEnv()
	assert.Equal(t, 42, c.CacheSize)
	assert.Equal(t, 5*time.Minute, c.CacheTTL)
	assert.Equal(t, 6*time.Hour, c.CacheTTLHot)
	assert.Equal(t, time.Duration(0), c.CacheTTLWarm)
	assert.False(t, c.CRSInfoEnabled)
	assert.Equal(t, 30*time.Second, c.UpstreamTimeout)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Invalidation.BrokerList())
	assert.Equal(t, time.Duration(0), c.CapabilitiesMaxAge)
}

func TestLoadDotEnv(t *testing.T) {
	p := writeFile(t, "test.env", "TG_DOTENV_PROBE=from-file\n")
	t.Setenv("TG_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("TG_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(p))
	assert.Equal(t, "from-file", os.Getenv("TG_DOTENV_PROBE"))
}
