package capabilities

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	b, err := os.ReadFile("testdata/capabilities.xml")
	require.NoError(t, err)
	return b
}

func TestParseTileMatrixSet_LKSLVM(t *testing.T) {
	tms, err := ParseTileMatrixSet(loadFixture(t), "LKS_LVM")
	require.NoError(t, err)

	assert.Equal(t, "urn:ogc:def:crs:EPSG::3059", tms.SupportedCRS)
	assert.Equal(t, 3059, tms.EPSG)
	assert.Equal(t, []int{7, 10}, tms.Zooms(), "matrix without zoom suffix must be skipped")

	m, ok := tms.Matrix(10)
	require.True(t, ok)
	assert.Equal(t, "LKS_LVM:10", m.Identifier)
	assert.Equal(t, 250000.0, m.ScaleDenominator)
	assert.Equal(t, [2]float64{-5120900, 3998100}, m.TopLeftCorner)
	assert.Equal(t, 512, m.TileWidth)
	assert.Equal(t, 512, m.TileHeight)
	assert.Equal(t, 880, m.MatrixWidth)
	assert.Equal(t, 480, m.MatrixHeight)
	assert.InDelta(t, 70.0, m.PixelSize(), 1e-9)
}

func TestParseTileMatrixSet_WellKnownScaleSet(t *testing.T) {
	tms, err := ParseTileMatrixSet(loadFixture(t), "WebMercatorQuad")
	require.NoError(t, err)
	assert.Equal(t, 3857, tms.EPSG)
	assert.Equal(t, "urn:ogc:def:wkss:OGC:1.0:GoogleMapsCompatible", tms.WellKnownScaleSet)
	_, ok := tms.Matrix(0)
	assert.True(t, ok)
}

func TestParseTileMatrixSet_NotFound(t *testing.T) {
	_, err := ParseTileMatrixSet(loadFixture(t), "EPSG:25832")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestParseLayerInfo(t *testing.T) {
	l, err := ParseLayerInfo(loadFixture(t), "public:Topo10DTM")
	require.NoError(t, err)

	assert.Equal(t, "Topo10 DTM", l.Title)
	assert.Equal(t, "Topographic map 1:10 000", l.Abstract)
	require.NotNil(t, l.WGS84BoundingBox)
	assert.Equal(t, [4]float64{20.9, 55.5, 28.3, 58.2}, *l.WGS84BoundingBox)
	assert.Equal(t, []string{"LKS_LVM", "WebMercatorQuad"}, l.TileMatrixSetLink)
	assert.Equal(t, []string{"image/png", "image/vnd.jpeg-png8"}, l.Formats)
	assert.Equal(t, []string{"raster"}, l.Styles)
}

func TestParseLayerInfo_TitleDefaultsToIdentifier(t *testing.T) {
	l, err := ParseLayerInfo(loadFixture(t), "public:Orto")
	require.NoError(t, err)
	assert.Equal(t, "public:Orto", l.Title)
	assert.Nil(t, l.WGS84BoundingBox)
}

func TestParseLayerInfo_NotFound(t *testing.T) {
	_, err := ParseLayerInfo(loadFixture(t), "public:Missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParse_MalformedXML(t *testing.T) {
	_, err := ParseTileMatrixSet([]byte("<Capabilities><Contents>"), "LKS_LVM")
	assert.Error(t, err)
}

func TestParseEPSG(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"urn:ogc:def:crs:EPSG::3059", 3059, true},
		{"urn:ogc:def:crs:EPSG:6.18.3:3857", 3857, true},
		{"EPSG:3857", 3857, true},
		{"epsg:4326", 4326, true},
		{"http://www.opengis.net/def/crs/EPSG/0/25832", 25832, true},
		{"urn:ogc:def:crs:OGC:1.3:CRS84", 0, false},
		{"EPSG:", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseEPSG(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestZoomFromIdentifier(t *testing.T) {
	z, ok := ZoomFromIdentifier("LKS_LVM:12")
	assert.True(t, ok)
	assert.Equal(t, 12, z)

	z, ok = ZoomFromIdentifier("EPSG:3857:5")
	assert.True(t, ok)
	assert.Equal(t, 5, z)

	z, ok = ZoomFromIdentifier("7")
	assert.True(t, ok)
	assert.Equal(t, 7, z)

	_, ok = ZoomFromIdentifier("overview")
	assert.False(t, ok)
}
