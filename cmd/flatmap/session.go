package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

func newSessionCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the identity behind the current token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.token == "" {
				return fmt.Errorf("no token: pass --token or set FLATMAPS_TOKEN")
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, opts.annotations+"/session", nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+opts.token)

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("annotation service unreachable: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusUnauthorized {
				return fmt.Errorf("token is invalid or expired; log in again via /login")
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("session lookup returned status %d", resp.StatusCode)
			}

			if opts.asJSON {
				_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
				return err
			}

			var session struct {
				Subject   string   `json:"subject"`
				SessionID string   `json:"session_id"`
				Scopes    []string `json:"scopes"`
				Device    string   `json:"device"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
				return fmt.Errorf("malformed session response: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Subject: %s\n", session.Subject)
			fmt.Fprintf(out, "Session: %s\n", session.SessionID)
			fmt.Fprintf(out, "Scopes:  %v\n", session.Scopes)
			fmt.Fprintf(out, "Device:  %s\n", session.Device)
			return nil
		},
	}
}
