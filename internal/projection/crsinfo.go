package projection

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/tile-gateway/internal/core/observability"
)

const lookupTimeout = 30 * time.Second

// CRSInfo is the textual definition of an EPSG code.
type CRSInfo struct {
	EPSG  int    `json:"epsg"`
	Proj4 string `json:"proj4,omitempty"`
	WKT   string `json:"wkt,omitempty"`
}

// CRSInfoSource looks up CRS definitions by EPSG code.
type CRSInfoSource interface {
	Lookup(ctx context.Context, epsg int) (CRSInfo, error)
}

// SpatialReferenceClient queries a spatialreference.org compatible service
// and remembers every successful answer for the process lifetime.
type SpatialReferenceClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[int]CRSInfo
}

func NewSpatialReferenceClient(baseURL string, client *http.Client, logger *slog.Logger) *SpatialReferenceClient {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SpatialReferenceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
		cache:   make(map[int]CRSInfo),
	}
}

func (c *SpatialReferenceClient) Lookup(ctx context.Context, epsg int) (CRSInfo, error) {
	c.mu.RLock()
	info, ok := c.cache[epsg]
	c.mu.RUnlock()
	if ok {
		return info, nil
	}

	ch := c.group.DoChan(fmt.Sprint(epsg), func() (any, error) {
		// detached so one caller's cancellation does not fail the others
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		proj4, err := c.get(ctx, epsg, "proj4")
		if err != nil {
			return CRSInfo{}, err
		}
		info := CRSInfo{EPSG: epsg, Proj4: proj4}
		// WKT is informational only
		if wkt, err := c.get(ctx, epsg, "ogcwkt"); err == nil {
			info.WKT = wkt
		} else {
			c.logger.DebugContext(ctx, "wkt lookup failed", "epsg", epsg, "err", err)
		}
		c.mu.Lock()
		c.cache[epsg] = info
		c.mu.Unlock()
		return info, nil
	})
	select {
	case <-ctx.Done():
		return CRSInfo{}, fmt.Errorf("crs info EPSG:%d: %w", epsg, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return CRSInfo{}, res.Err
		}
		return res.Val.(CRSInfo), nil
	}
}

func (c *SpatialReferenceClient) get(ctx context.Context, epsg int, format string) (string, error) {
	u := fmt.Sprintf("%s/ref/epsg/%d/%s/", c.baseURL, epsg, format)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("crs info %s: %w", format, err)
	}
	defer func() { _ = resp.Body.Close() }()
	observability.ObserveUpstreamLatency("crs_info", time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("crs info %s: upstream status %d", format, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", fmt.Errorf("crs info %s: empty body", format)
	}
	return s, nil
}

// Clear forgets every cached definition.
func (c *SpatialReferenceClient) Clear() {
	c.mu.Lock()
	c.cache = make(map[int]CRSInfo)
	c.mu.Unlock()
}
