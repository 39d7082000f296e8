package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/tile-gateway/internal/wmts/capabilities"
)

type matrixSummary struct {
	Identifier        string `json:"identifier"`
	SupportedCRS      string `json:"supported_crs"`
	EPSG              int    `json:"epsg,omitempty"`
	WellKnownScaleSet string `json:"well_known_scale_set,omitempty"`
	Zooms             []int  `json:"zooms"`
}

type capabilitiesSummary struct {
	Endpoint      string                  `json:"endpoint"`
	URL           string                  `json:"url"`
	Layer         *capabilities.LayerInfo `json:"layer,omitempty"`
	TileMatrixSet *matrixSummary          `json:"tile_matrix_set,omitempty"`
	Errors        []string                `json:"errors,omitempty"`
}

func newCapabilitiesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Fetch and summarize the WMTS capabilities of an endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			ep, err := a.registry.Endpoint(cfg.DefaultEndpoint)
			if err != nil {
				return err
			}
			cs, err := a.registry.CoordinateSystem(ep.CoordinateSystem)
			if err != nil {
				return err
			}
			raw, err := a.exec.FetchCapabilities(cmd.Context(), ep.URL)
			if err != nil {
				return fmt.Errorf("fetch capabilities for %s: %w", ep.Name, err)
			}

			out := capabilitiesSummary{Endpoint: ep.Name, URL: ep.URL}
			if layer, err := capabilities.ParseLayerInfo(raw, ep.Layer); err != nil {
				out.Errors = append(out.Errors, err.Error())
			} else {
				out.Layer = layer
			}
			matrixSet := ep.CoordinateSystem
			if cs.Dynamic != nil {
				matrixSet = cs.Dynamic.TileMatrixSet
			}
			if tms, err := capabilities.ParseTileMatrixSet(raw, matrixSet); err != nil {
				out.Errors = append(out.Errors, err.Error())
			} else {
				out.TileMatrixSet = &matrixSummary{
					Identifier:        tms.Identifier,
					SupportedCRS:      tms.SupportedCRS,
					EPSG:              tms.EPSG,
					WellKnownScaleSet: tms.WellKnownScaleSet,
					Zooms:             tms.Zooms(),
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
