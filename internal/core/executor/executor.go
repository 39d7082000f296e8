// Package executor performs the upstream WMTS requests.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/mohammed-shakir/tile-gateway/internal/core/config"
	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
	"github.com/mohammed-shakir/tile-gateway/internal/core/observability"
	"github.com/mohammed-shakir/tile-gateway/internal/core/ogc"
	"github.com/mohammed-shakir/tile-gateway/internal/imaging"
)

const maxTileBytes = 16 << 20

type Interface interface {
	FetchCapabilities(ctx context.Context, url string) ([]byte, error)
	FetchTile(ctx context.Context, ep *config.Endpoint, tm model.TransformedTileCoordinate) ([]byte, error)
}

type Executor struct {
	logger   *slog.Logger
	client   *http.Client
	startNow func() time.Time // for tests
}

func New(logger *slog.Logger, client *http.Client) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Executor{
		logger:   logger,
		client:   client,
		startNow: time.Now,
	}
}

// FetchCapabilities downloads the GetCapabilities document of the WMTS
// service at base.
func (e *Executor) FetchCapabilities(ctx context.Context, base string) ([]byte, error) {
	u, err := ogc.GetCapabilitiesURL(base)
	if err != nil {
		return nil, err
	}
	body, _, err := e.get(ctx, u, "capabilities", "application/xml")
	if err != nil {
		return nil, err
	}
	return body, nil
}

// FetchTile issues a GetTile for tm against ep and returns the tile as a
// 256x256 PNG. Non-200 answers and non-image payloads (service exceptions)
// surface as model.ErrUpstreamUnavailable.
func (e *Executor) FetchTile(ctx context.Context, ep *config.Endpoint, tm model.TransformedTileCoordinate) ([]byte, error) {
	u, err := ogc.GetTileURL(ep.URL, ogc.GetTileRequest{
		Layer:         ep.Layer,
		Style:         ep.Style,
		TileMatrixSet: ep.CoordinateSystem,
		Format:        ep.Format,
		TileMatrix:    tm.TileMatrix,
		TileCol:       tm.TileCol,
		TileRow:       tm.TileRow,
		AppID:         ep.AppID,
	})
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "fetch tile", "endpoint", ep.Name, "url", u)
	body, ctype, err := e.get(ctx, u, ep.Name, "image/*")
	if err != nil {
		return nil, err
	}
	if !isImage(ctype) {
		return nil, fmt.Errorf("%w: content type %q", model.ErrUpstreamUnavailable, ctype)
	}

	out, action := imaging.Normalize(body, tm.QuadrantX, tm.QuadrantY)
	if action == imaging.Undecodable {
		e.logger.WarnContext(ctx, "tile not decodable, returning upstream bytes",
			"endpoint", ep.Name, "tile_matrix", tm.TileMatrix, "col", tm.TileCol, "row", tm.TileRow)
	}
	return out, nil
}

func (e *Executor) get(ctx context.Context, u, upstream, accept string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", accept)

	start := e.startNow()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", model.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	observability.ObserveUpstreamLatency(upstream, time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, "", fmt.Errorf("%w: status %d: %s", model.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read body: %w", model.ErrUpstreamUnavailable, err)
	}
	return b, resp.Header.Get("Content-Type"), nil
}

func isImage(ctype string) bool {
	mt, _, err := mime.ParseMediaType(ctype)
	if err != nil {
		return strings.Contains(ctype, "image")
	}
	return strings.HasPrefix(mt, "image/")
}
