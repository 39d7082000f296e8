// Package metrics owns the Prometheus registry exported by the gateway.
package metrics

import (
	"net/http"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tilegateway"

type Config struct {
	// Addr serves metrics on a dedicated listener when set; otherwise the
	// handler is mounted on the main router at Path.
	Addr    string
	Path    string
	Version string
}

type Provider struct {
	reg  *prometheus.Registry
	path string
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	revision, modified := vcsInfo()
	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "modified"},
	)
	reg.MustRegister(build)
	build.WithLabelValues(version, revision, modified).Set(1)

	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	return &Provider{reg: reg, path: path}
}

func vcsInfo() (revision, modified string) {
	revision, modified = "unknown", "false"
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}
	return
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

func (p *Provider) Path() string { return p.path }

// GaugeFunc exports fn, sampled on every scrape, as tilegateway_<name>.
func (p *Provider) GaugeFunc(name, help string, fn func() float64) {
	p.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }
