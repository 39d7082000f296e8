package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammed-shakir/tile-gateway/internal/cache/tilecache"
	"github.com/mohammed-shakir/tile-gateway/internal/core/config"
	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
	"github.com/mohammed-shakir/tile-gateway/internal/core/router"
	"github.com/mohammed-shakir/tile-gateway/internal/gateway"
)

type nopFetcher struct{}

func (nopFetcher) FetchTile(context.Context, *config.Endpoint, model.TransformedTileCoordinate) ([]byte, error) {
	return []byte("png"), nil
}

func newHandler(t *testing.T) http.Handler {
	t.Helper()
	reg, err := config.LoadRegistry("", "")
	if err != nil {
		t.Fatal(err)
	}
	gw, err := gateway.New(gateway.Options{
		Registry: reg,
		Fetcher:  nopFetcher{},
		Tiles:    tilecache.New(tilecache.Config{}, nil, nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	return Handler(logger, gw, Options{Info: router.Info{Service: "tile-gateway", Version: "test"}, Metrics: metrics})
}

func TestHandler_Routes(t *testing.T) {
	h := newHandler(t)
	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/tiles/10/580/316", http.StatusOK},
		{http.MethodGet, "/tiles/10/-1/316", http.StatusBadRequest},
		{http.MethodGet, "/tiles/10/580/316?endpoint=missing", http.StatusNotFound},
		{http.MethodGet, "/endpoints", http.StatusOK},
		{http.MethodOptions, "/tiles/10/580/316", http.StatusNoContent},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		if rr.Code != tc.want {
			t.Errorf("%s %s: status=%d want %d", tc.method, tc.path, rr.Code, tc.want)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s %s: missing request id", tc.method, tc.path)
		}
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	reg, err := config.LoadRegistry("", "")
	if err != nil {
		t.Fatal(err)
	}
	gw, err := gateway.New(gateway.Options{Registry: reg, Fetcher: nopFetcher{}, Tiles: tilecache.New(tilecache.Config{}, nil, nil)})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), gw, Options{Addr: "127.0.0.1:0"})
	}()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
