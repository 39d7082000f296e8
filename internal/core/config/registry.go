package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
)

type Bounds struct {
	MinLon float64 `mapstructure:"min_lon" json:"min_lon" validate:"gte=-180,lte=180"`
	MinLat float64 `mapstructure:"min_lat" json:"min_lat" validate:"gte=-90,lte=90"`
	MaxLon float64 `mapstructure:"max_lon" json:"max_lon" validate:"gte=-180,lte=180,gtfield=MinLon"`
	MaxLat float64 `mapstructure:"max_lat" json:"max_lat" validate:"gte=-90,lte=90,gtfield=MinLat"`
}

func (b Bounds) BBox() model.BoundingBox {
	return model.BoundingBox{MinLon: b.MinLon, MinLat: b.MinLat, MaxLon: b.MaxLon, MaxLat: b.MaxLat}
}

// DynamicSource points at the WMTS capabilities describing a system.
type DynamicSource struct {
	CapabilitiesURL string `mapstructure:"capabilities_url" validate:"required,url"`
	TileMatrixSet   string `mapstructure:"tile_matrix_set" validate:"required"`
	Layer           string `mapstructure:"layer" validate:"required"`
}

type ScaleEntry struct {
	Zoom        int     `mapstructure:"zoom" validate:"gte=0,lte=30"`
	Denominator float64 `mapstructure:"denominator" validate:"gt=0"`
}

// StaticFallback is used when capabilities are unavailable or lack a zoom.
type StaticFallback struct {
	EPSG        int          `mapstructure:"epsg" validate:"omitempty,gt=0"`
	OriginX     float64      `mapstructure:"origin_x"`
	OriginY     float64      `mapstructure:"origin_y"`
	Scales      []ScaleEntry `mapstructure:"scales" validate:"omitempty,dive"`
	DefaultZoom int          `mapstructure:"default_zoom" default:"10" validate:"gte=0,lte=30"`
	TileSize    int          `mapstructure:"tile_size" default:"512" validate:"gte=256"`
}

// Scale returns the denominator for zoom, then the default zoom entry, then
// the entry closest to zoom. ok is false when no table is configured.
func (s *StaticFallback) Scale(zoom int) (float64, bool) {
	if s == nil || len(s.Scales) == 0 {
		return 0, false
	}
	var fallback *ScaleEntry
	nearest := s.Scales[0]
	for i := range s.Scales {
		e := s.Scales[i]
		if e.Zoom == zoom {
			return e.Denominator, true
		}
		if e.Zoom == s.DefaultZoom {
			fallback = &s.Scales[i]
		}
		if absInt(e.Zoom-zoom) < absInt(nearest.Zoom-zoom) {
			nearest = e
		}
	}
	if fallback != nil {
		return fallback.Denominator, true
	}
	return nearest.Denominator, true
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

type CoordinateSystem struct {
	ID               string `mapstructure:"id" json:"id" validate:"required"`
	Name             string `mapstructure:"name" json:"name" validate:"required"`
	Description      string `mapstructure:"description" json:"description"`
	Bounds           Bounds `mapstructure:"bounds" json:"bounds"`
	TileMatrixPrefix string `mapstructure:"tile_matrix_prefix" json:"tile_matrix_prefix"`
	MinZoom          int    `mapstructure:"min_zoom" json:"min_zoom" validate:"gte=0,lte=30"`
	MaxZoom          int    `mapstructure:"max_zoom" json:"max_zoom" default:"20" validate:"gtefield=MinZoom,lte=30"`
	// Passthrough systems share the client Web-Mercator grid.
	Passthrough bool `mapstructure:"passthrough" json:"passthrough"`
	// LimitTable names the coverage window table checked for transformed tiles.
	LimitTable       string          `mapstructure:"limit_table" json:"limit_table,omitempty"`
	Dynamic          *DynamicSource  `mapstructure:"dynamic" json:"dynamic,omitempty"`
	Static           *StaticFallback `mapstructure:"static" json:"static,omitempty"`
	CoverageOverride *Bounds         `mapstructure:"coverage_override" json:"coverage_override,omitempty"`
}

// EPSG is the statically configured code, 0 when unknown.
func (c *CoordinateSystem) EPSG() int {
	if c.Static == nil {
		return 0
	}
	return c.Static.EPSG
}

type Endpoint struct {
	Name             string `mapstructure:"name" json:"-" validate:"required"`
	URL              string `mapstructure:"url" json:"url" validate:"required,url"`
	Layer            string `mapstructure:"layer" json:"layer" validate:"required"`
	CoordinateSystem string `mapstructure:"coordinate_system" json:"coordinate_system" validate:"required"`
	AppID            string `mapstructure:"app_id" json:"app_id,omitempty"`
	Style            string `mapstructure:"style" json:"style" default:"raster"`
	Format           string `mapstructure:"format" json:"format" default:"image/vnd.jpeg-png8"`
	// TransparentOutsideCoverage answers tiles missing from the coverage
	// table with a transparent PNG instead of rejecting them.
	TransparentOutsideCoverage bool `mapstructure:"transparent_outside_coverage" json:"transparent_outside_coverage,omitempty"`
}

// Registry is the read-only set of endpoints and coordinate systems.
type Registry struct {
	Service           string             `mapstructure:"service" default:"tile-gateway"`
	DefaultEndpoint   string             `mapstructure:"default_endpoint" validate:"required"`
	CoordinateSystems []CoordinateSystem `mapstructure:"coordinate_systems" validate:"required,min=1,dive"`
	Endpoints         []Endpoint         `mapstructure:"endpoints" validate:"required,min=1,dive"`

	systems   map[string]*CoordinateSystem
	endpoints map[string]*Endpoint
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadRegistry returns the built-in registry, replaced by the YAML file at
// path when one is given. defaultEndpoint overrides the file's value.
func LoadRegistry(path, defaultEndpoint string) (*Registry, error) {
	var reg *Registry
	if path == "" {
		reg = Builtin()
	} else {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetEnvPrefix("GATEWAY")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read gateway config %s: %w", path, err)
		}
		reg = &Registry{}
		if err := v.Unmarshal(reg); err != nil {
			return nil, fmt.Errorf("decode gateway config %s: %w", path, err)
		}
	}
	if defaultEndpoint != "" {
		reg.DefaultEndpoint = defaultEndpoint
	}
	if err := reg.Finalize(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Finalize applies defaults, validates and indexes the registry. Every
// cross reference is checked so lookups never silently miss at runtime.
func (r *Registry) Finalize() error {
	if err := defaults.Set(r); err != nil {
		return fmt.Errorf("apply registry defaults: %w", err)
	}
	for i := range r.CoordinateSystems {
		cs := &r.CoordinateSystems[i]
		if err := defaults.Set(cs); err != nil {
			return fmt.Errorf("apply defaults to %s: %w", cs.ID, err)
		}
		if cs.Static != nil {
			if err := defaults.Set(cs.Static); err != nil {
				return fmt.Errorf("apply defaults to %s: %w", cs.ID, err)
			}
		}
	}
	for i := range r.Endpoints {
		if err := defaults.Set(&r.Endpoints[i]); err != nil {
			return fmt.Errorf("apply defaults to %s: %w", r.Endpoints[i].Name, err)
		}
	}

	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid gateway config: %w", err)
	}

	r.systems = make(map[string]*CoordinateSystem, len(r.CoordinateSystems))
	r.endpoints = make(map[string]*Endpoint, len(r.Endpoints))

	var errs []error
	for i := range r.CoordinateSystems {
		cs := &r.CoordinateSystems[i]
		if _, dup := r.systems[cs.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate coordinate system %q", cs.ID))
		}
		r.systems[cs.ID] = cs
		if !cs.Passthrough && cs.Dynamic == nil && cs.EPSG() == 0 {
			errs = append(errs, fmt.Errorf("coordinate system %q: needs a dynamic source or a static epsg", cs.ID))
		}
	}
	for i := range r.Endpoints {
		ep := &r.Endpoints[i]
		if _, dup := r.endpoints[ep.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate endpoint %q", ep.Name))
		}
		r.endpoints[ep.Name] = ep
		if _, ok := r.systems[ep.CoordinateSystem]; !ok {
			errs = append(errs, fmt.Errorf("endpoint %q: %w %q", ep.Name, model.ErrUnknownCoordinateSystem, ep.CoordinateSystem))
		}
	}
	if _, ok := r.endpoints[r.DefaultEndpoint]; !ok {
		errs = append(errs, fmt.Errorf("default endpoint: %w %q", model.ErrUnknownEndpoint, r.DefaultEndpoint))
	}
	return errors.Join(errs...)
}

// Endpoint resolves name, using the default endpoint when name is empty.
func (r *Registry) Endpoint(name string) (*Endpoint, error) {
	if name == "" {
		name = r.DefaultEndpoint
	}
	ep, ok := r.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownEndpoint, name)
	}
	return ep, nil
}

func (r *Registry) CoordinateSystem(id string) (*CoordinateSystem, error) {
	cs, ok := r.systems[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownCoordinateSystem, id)
	}
	return cs, nil
}

func (r *Registry) EndpointNames() []string {
	out := make([]string, 0, len(r.endpoints))
	for n := range r.endpoints {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
