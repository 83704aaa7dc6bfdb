package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"flatmaps/internal/annotation/models"
	"flatmaps/internal/annotation/store"
	"flatmaps/internal/annotation/store/httpclient"
)

// staticTokenSource serves the token passed on the command line.
type staticTokenSource struct {
	token string
}

func (s staticTokenSource) Token(context.Context) (string, error) {
	if s.token == "" {
		return "", fmt.Errorf("no token: pass --token or set FLATMAPS_TOKEN")
	}
	return s.token, nil
}

func newAnnotationsCmd(opts *cliOptions) *cobra.Command {
	annotationsCmd := &cobra.Command{
		Use:   "annotations",
		Short: "Read and write feature annotation threads",
	}
	annotationsCmd.AddCommand(
		newAnnotationsGetCmd(opts),
		newAnnotationsAddCmd(opts),
	)
	return annotationsCmd
}

func newAnnotationsGetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <mapID> <featureID>",
		Short: "Fetch the annotation thread for a feature",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := httpclient.New(opts.annotations, args[0], nil)
			a, err := client.Fetch(cmd.Context(), args[1])
			if err != nil {
				return fmt.Errorf("fetch annotations: %w", err)
			}
			return writeAnnotation(cmd, opts, a)
		},
	}
}

func newAnnotationsAddCmd(opts *cliOptions) *cobra.Command {
	var (
		text   string
		expect int64
	)

	cmd := &cobra.Command{
		Use:   "add <mapID> <featureID>",
		Short: "Append a comment to a feature's annotation thread",
		Long:  "Fetches the current thread, appends the comment, and saves it against the version it was read at. A conflict means someone else saved first; rerun to retry against their version.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapID, featureID := args[0], args[1]
			client := httpclient.New(opts.annotations, mapID, staticTokenSource{token: opts.token})

			current, err := client.Fetch(cmd.Context(), featureID)
			if err != nil {
				return fmt.Errorf("fetch annotations: %w", err)
			}
			expected := current.Version
			if cmd.Flags().Changed("expect-version") {
				expected = expect
			}

			comments := append(append([]models.Comment(nil), current.Comments...), models.Comment{Text: text})
			version, err := client.Save(cmd.Context(), featureID, comments, expected)
			if err != nil {
				var conflict *store.ConflictError
				if errors.As(err, &conflict) {
					fmt.Fprintf(cmd.ErrOrStderr(), "conflict: feature is now at version %d with %d comments; rerun to retry\n",
						conflict.Current.Version, len(conflict.Current.Comments))
				}
				return fmt.Errorf("save annotations: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "saved: feature %s now at version %d\n", featureID, version)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "comment text to append")
	cmd.Flags().Int64Var(&expect, "expect-version", 0, "save only if the thread is still at this version")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

func writeAnnotation(cmd *cobra.Command, opts *cliOptions, a *models.FeatureAnnotation) error {
	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Feature: %s (version %d)\n", a.FeatureID, a.Version)
	if len(a.Comments) == 0 {
		fmt.Fprintln(out, "No comments.")
		return nil
	}
	for _, c := range a.Comments {
		fmt.Fprintf(out, "  [%s] %s: %s\n", c.CreatedAt.Format("2006-01-02 15:04"), c.Author, c.Text)
	}
	return nil
}
