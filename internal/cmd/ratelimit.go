package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/riftproxy/riftproxy/internal/core"
	apperrors "github.com/riftproxy/riftproxy/internal/errors"
	"github.com/riftproxy/riftproxy/internal/output"
	"github.com/riftproxy/riftproxy/internal/server/handlers"
)

var rateLimitServer string

var rateLimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Inspect upstream rate limit state",
}

var rateLimitShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the rate state observed by a running server",
	Long: `Fetch the application and method rate windows last observed by a running
server. Rate state lives in the server process; a fresh CLI process has
observed nothing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 5 * time.Second}
		state, err := fetchRateState(cmd, client, rateLimitServer)
		if err != nil {
			return err
		}
		return writeView(cmd, rateViewFromResponse(state))
	},
}

func fetchRateState(cmd *cobra.Command, client *http.Client, server string) (handlers.RateStateResponse, error) {
	var state handlers.RateStateResponse

	base, err := url.Parse(strings.TrimSpace(server))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return state, fmt.Errorf("invalid --server url %q", server)
	}
	endpoint := base.JoinPath("api", "ratelimit")

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return state, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return state, &core.UpstreamError{Kind: core.KindNetworkFailure, Endpoint: "ratelimit", Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return state, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var envelope apperrors.HTTPErrorResponse
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != "" {
			return state, fmt.Errorf("server returned %d %s: %s", resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
		}
		return state, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, &state); err != nil {
		return state, fmt.Errorf("decode rate state: %w", err)
	}
	return state, nil
}

func rateViewFromResponse(resp handlers.RateStateResponse) output.RateView {
	view := output.RateView{
		Observed: resp.Observed,
		State: core.RateState{
			Application: resp.Application,
			Method:      resp.Method,
		},
	}
	if resp.ObservedAt != nil {
		view.State.ObservedAt = *resp.ObservedAt
	}
	return view
}

func init() {
	rateLimitShowCmd.Flags().StringVar(&rateLimitServer, "server", "http://localhost:8080", "base URL of a running server")
	addOutputFlags(rateLimitShowCmd)
	rateLimitCmd.AddCommand(rateLimitShowCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
