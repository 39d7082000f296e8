package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/tile-gateway/internal/core/config"
	"github.com/mohammed-shakir/tile-gateway/internal/logger"
)

type globalFlags struct {
	envFile       string
	gatewayConfig string
	endpoint      string
	logLevel      string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "tilegateway",
		Short:         "Serve slippy-map tiles from WMTS services in any tile grid",
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       Version,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.envFile, "env-file", "", ".env file to load (default: ./.env when present)")
	pf.StringVar(&g.gatewayConfig, "config", "", "gateway YAML with endpoints and coordinate systems (env GATEWAY_CONFIG)")
	pf.StringVar(&g.endpoint, "endpoint", "", "endpoint name (default: the configured default endpoint)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level (env LOG_LEVEL)")

	root.AddCommand(
		newServeCmd(g),
		newTransformCmd(g),
		newCapabilitiesCmd(g),
		newVersionCmd(),
	)
	return root
}

// load resolves the process configuration: .env, then environment, then flags.
func (g *globalFlags) load() (config.Config, error) {
	var err error
	if g.envFile != "" {
		err = config.LoadDotEnv(g.envFile)
	} else {
		err = config.LoadDotEnv()
	}
	if err != nil {
		return config.Config{}, err
	}
	cfg := config.FromEnv()
	if g.gatewayConfig != "" {
		cfg.GatewayConfig = g.gatewayConfig
	}
	if g.endpoint != "" {
		cfg.DefaultEndpoint = g.endpoint
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, nil
}

func newLoggers(cfg config.Config, out io.Writer, component string) (*zerolog.Logger, *slog.Logger) {
	if out == nil {
		out = os.Stdout
	}
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogPretty,
		SampleN:   cfg.LogSample,
		Service:   "tile-gateway",
		Component: component,
	}, out)
	return &zl, logger.NewSlog(&zl)
}
