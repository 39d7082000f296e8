package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newTransformCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "transform z/x/y",
		Short: "Show how a slippy tile maps onto the endpoint's upstream tile matrix",
		Example: `  tilegateway transform 10/580/316 --endpoint latvia
  tilegateway transform 12 2322 1268`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			z, x, y, err := parseTileArgs(args)
			if err != nil {
				return err
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}
			zl, logger := newLoggers(cfg, cmd.ErrOrStderr(), "cli")
			a, err := buildApp(cmd.Context(), cfg, logger, zl)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			info, err := a.gateway.Debug(cmd.Context(), cfg.DefaultEndpoint, z, x, y)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}

// parseTileArgs accepts "z/x/y" or three separate integers.
func parseTileArgs(args []string) (z, x, y int, err error) {
	parts := args
	if len(args) == 1 {
		parts = strings.Split(strings.Trim(args[0], "/"), "/")
	}
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("expected z/x/y, got %q", strings.Join(args, " "))
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, 0, 0, fmt.Errorf("tile coordinate %q is not an integer", p)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
