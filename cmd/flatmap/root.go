package main

import (
	"os"

	"github.com/spf13/cobra"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// cliOptions carries the connection flags shared by subcommands.
type cliOptions struct {
	mapServer   string
	annotations string
	token       string
	asJSON      bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           "flatmap",
		Short:         "flatmap: inspect map descriptors and feature annotations from the terminal",
		Long:          "flatmap talks to a flat-map server and its annotation service: fetch map descriptors, read feature annotation threads, and append comments with optimistic-concurrency semantics.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&opts.mapServer, "map-server", envOr("FLATMAPS_MAP_SERVER", "http://localhost:8000"), "base URL of the flat-map server")
	rootCmd.PersistentFlags().StringVar(&opts.annotations, "annotation-server", envOr("FLATMAPS_ANNOTATION_SERVER", "http://localhost:8080"), "base URL of the annotation service")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", envOr("FLATMAPS_TOKEN", ""), "bearer token for authenticated operations")
	rootCmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "emit raw JSON instead of formatted output")

	rootCmd.AddCommand(
		newViewCmd(opts),
		newAnnotationsCmd(opts),
		newSessionCmd(opts),
	)

	return rootCmd
}
