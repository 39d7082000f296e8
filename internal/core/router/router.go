// Package router exposes the gateway over HTTP.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
	"github.com/mohammed-shakir/tile-gateway/internal/core/observability"
	"github.com/mohammed-shakir/tile-gateway/internal/gateway"
	"github.com/mohammed-shakir/tile-gateway/internal/hotness"
	mylog "github.com/mohammed-shakir/tile-gateway/internal/logger"
)

// Gateway is the subset of *gateway.Gateway served over HTTP.
type Gateway interface {
	ServeTile(ctx context.Context, endpoint string, z, x, y int) (gateway.Tile, error)
	GetBounds(ctx context.Context, endpoint string) (gateway.Bounds, error)
	ClearCache(ctx context.Context)
	Debug(ctx context.Context, endpoint string, z, x, y int) (gateway.DebugInfo, error)
	Endpoints() map[string]gateway.EndpointInfo
	EndpointNames() []string
	CoordinateSystems() map[string]string
	Hotspots(n int) []hotness.Entry
	CacheSize() int
}

type Info struct {
	Service string
	Version string
}

const (
	tileCacheControl = "public, max-age=3600"
	defaultHotspots  = 20
	maxHotspots      = 1000
)

// Mount registers the gateway routes on r.
func Mount(r chi.Router, logger *slog.Logger, gw Gateway, info Info) {
	h := &handlers{logger: logger, gw: gw, info: info}
	r.Get("/", h.observe("/", h.root))
	r.Get("/tiles/{z}/{x}/{y}", h.observe("/tiles", h.tile))
	r.Get("/bounds/{endpoint}", h.observe("/bounds", h.bounds))
	r.Post("/cache/clear", h.observe("/cache/clear", h.clearCache))
	r.Get("/endpoints", h.observe("/endpoints", h.endpoints))
	r.Get("/coordinate-systems", h.observe("/coordinate-systems", h.coordinateSystems))
	r.Get("/debug/{z}/{x}/{y}", h.observe("/debug", h.debug))
	r.Get("/hotness", h.observe("/hotness", h.hotness))
	r.Get("/health", h.observe("/health", h.health))
}

type handlers struct {
	logger *slog.Logger
	gw     Gateway
	info   Info
}

func (h *handlers) observe(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		fn(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (h *handlers) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":            h.info.Service,
		"version":            h.info.Version,
		"endpoints":          h.gw.EndpointNames(),
		"coordinate_systems": h.gw.CoordinateSystems(),
	})
}

func (h *handlers) tile(w http.ResponseWriter, r *http.Request) {
	z, x, y, err := tileParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	endpoint := r.URL.Query().Get("endpoint")
	ctx := mylog.WithTile(mylog.WithEndpoint(r.Context(), endpoint), strconv.Itoa(z)+"/"+strconv.Itoa(x)+"/"+strconv.Itoa(y))

	t, err := h.gw.ServeTile(ctx, endpoint, z, x, y)
	if err != nil {
		status, msg := classify(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "tile request failed", "err", err)
		} else {
			h.logger.DebugContext(ctx, "tile rejected", "status", status, "err", err)
		}
		writeError(w, status, msg)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", tileCacheControl)
	w.Header().Set("X-Tile-Source", string(t.Outcome))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(t.Data)
}

// classify maps gateway errors to a status and a client-safe message.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrUnknownEndpoint):
		return http.StatusNotFound, "Unknown endpoint"
	case errors.Is(err, model.ErrInvalidCoordinate):
		return http.StatusBadRequest, "Tile coordinates must be non-negative and within the zoom pyramid"
	case errors.Is(err, model.ErrOutOfCoverage):
		return http.StatusBadRequest, "Tile coordinates out of bounds"
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return http.StatusNotFound, "Tile not found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Tile request timed out"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func tileParams(r *http.Request) (z, x, y int, err error) {
	if z, err = intParam(r, "z"); err != nil {
		return
	}
	if x, err = intParam(r, "x"); err != nil {
		return
	}
	y, err = intParam(r, "y")
	return
}

func intParam(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, errors.New("tile coordinate " + name + " must be an integer")
	}
	return v, nil
}

type boundsBody struct {
	Southwest [2]float64 `json:"southwest"`
	Northeast [2]float64 `json:"northeast"`
	MinLon    float64    `json:"min_lon"`
	MinLat    float64    `json:"min_lat"`
	MaxLon    float64    `json:"max_lon"`
	MaxLat    float64    `json:"max_lat"`
}

func (h *handlers) bounds(w http.ResponseWriter, r *http.Request) {
	endpoint := chi.URLParam(r, "endpoint")
	b, err := h.gw.GetBounds(r.Context(), endpoint)
	if err != nil {
		if errors.Is(err, model.ErrUnknownEndpoint) {
			writeError(w, http.StatusNotFound, "Unknown endpoint")
			return
		}
		h.logger.ErrorContext(r.Context(), "bounds failed", "endpoint", endpoint, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to get bounds")
		return
	}
	bb := b.BBox
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoint": b.Endpoint,
		"bounds": boundsBody{
			Southwest: [2]float64{bb.MinLat, bb.MinLon},
			Northeast: [2]float64{bb.MaxLat, bb.MaxLon},
			MinLon:    bb.MinLon,
			MinLat:    bb.MinLat,
			MaxLon:    bb.MaxLon,
			MaxLat:    bb.MaxLat,
		},
		"zoom_range": b.ZoomRange,
	})
}

func (h *handlers) clearCache(w http.ResponseWriter, r *http.Request) {
	h.gw.ClearCache(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"message": "All caches cleared"})
}

func (h *handlers) endpoints(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.Endpoints())
}

func (h *handlers) coordinateSystems(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.CoordinateSystems())
}

// debug reports errors in the body with status 200 so it can be used from
// a browser while inspecting arbitrary tiles.
func (h *handlers) debug(w http.ResponseWriter, r *http.Request) {
	z, x, y, err := tileParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, err := h.gw.Debug(r.Context(), r.URL.Query().Get("endpoint"), z, x, y)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handlers) hotness(w http.ResponseWriter, r *http.Request) {
	n := defaultHotspots
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = min(v, maxHotspots)
	}
	cells := h.gw.Hotspots(n)
	if cells == nil {
		cells = []hotness.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cells": cells})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "cache_size": h.gw.CacheSize()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
