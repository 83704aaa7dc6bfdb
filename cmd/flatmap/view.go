package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"flatmaps/internal/mapsource"
)

func newViewCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view <identifier>",
		Short: "Fetch and display a map descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := mapsource.New(opts.mapServer)
			desc, err := source.Fetch(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("fetch map %q: %w", args[0], err)
			}

			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(desc)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Map:     %s\n", desc.Name)
			fmt.Fprintf(out, "ID:      %s\n", desc.ID)
			if desc.Taxon != "" {
				fmt.Fprintf(out, "Taxon:   %s\n", desc.Taxon)
			}
			if desc.Created != "" {
				fmt.Fprintf(out, "Created: %s\n", desc.Created)
			}
			fmt.Fprintf(out, "Layers:  %d\n", len(desc.Layers))
			for _, layer := range desc.Layers {
				marker := " "
				if layer.Selectable {
					marker = "*"
				}
				fmt.Fprintf(out, "  %s %s  %s\n", marker, layer.ID, layer.Description)
			}
			return nil
		},
	}
}
