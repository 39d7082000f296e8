package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr      string
	LogLevel  string
	LogSample int
	LogPretty bool

	// GatewayConfig is an optional YAML file overriding the built-in registry.
	GatewayConfig   string
	DefaultEndpoint string

	CacheSize          int
	CacheTTL           time.Duration
	CacheTTLWarm       time.Duration
	CacheTTLHot        time.Duration
	CapabilitiesMaxAge time.Duration
	UpstreamTimeout    time.Duration

	RedisAddr      string
	RedisPrefix    string
	CacheOpTimeout time.Duration

	CRSInfoEnabled bool
	CRSInfoURL     string
	CRSDatabaseURL string

	HotHalfLife  time.Duration
	HotThreshold float64
	HotLogSample float64
	// HotPruneFloor is the decayed score below which a cell is forgotten.
	HotPruneFloor float64

	Invalidation InvalidationCfg
	Metrics      MetricsCfg
}

// LoadDotEnv reads .env style files into the process environment without
// overriding variables that are already set. A missing default .env is fine.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		return godotenv.Load()
	}
	return godotenv.Load(paths...)
}

func FromEnv() Config {
	return Config{
		Addr:      getenv("ADDR", ":8090"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogSample: getint("LOG_SAMPLE_N", 0),
		LogPretty: getbool("LOG_CONSOLE", false),

		GatewayConfig:   getenv("GATEWAY_CONFIG", ""),
		DefaultEndpoint: getenv("DEFAULT_ENDPOINT", ""),

		CacheSize:          getint("CACHE_SIZE", 1000),
		CacheTTL:           getduration("CACHE_TTL", time.Hour),
		CacheTTLWarm:       getduration("CACHE_TTL_WARM", 0),
		CacheTTLHot:        getduration("CACHE_TTL_HOT", 0),
		CapabilitiesMaxAge: getduration("CAPABILITIES_MAX_AGE", 0),
		UpstreamTimeout:    getduration("UPSTREAM_TIMEOUT", 30*time.Second),

		RedisAddr:      getenv("REDIS_ADDR", ""),
		RedisPrefix:    getenv("REDIS_PREFIX", "tg"),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),

		CRSInfoEnabled: getbool("CRS_INFO_ENABLED", true),
		CRSInfoURL:     getenv("CRS_INFO_URL", "https://spatialreference.org"),
		CRSDatabaseURL: getenv("CRS_DATABASE_URL", ""),

		HotHalfLife:   getduration("HOT_HALF_LIFE", time.Minute),
		HotThreshold:  getfloat("HOT_THRESHOLD", 0),
		HotLogSample:  getfloat("LOG_HOTNESS_SAMPLE", 0.01),
		HotPruneFloor: getfloat("HOT_PRUNE_FLOOR", 0.05),

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "tile-invalidation"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "tile-gateway"),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Addr:    getenv("METRICS_ADDR", ""),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

// BrokerList splits the comma separated broker list.
func (c InvalidationCfg) BrokerList() []string {
	var out []string
	for b := range strings.SplitSeq(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
