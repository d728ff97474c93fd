package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type syncOptions struct {
	server  string
	token   string
	async   bool
	timeout time.Duration
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync <integration-id>",
		Short: "Trigger a sync on a running server",
		Long: `Trigger a sync of a stored integration through the server's API.

With --async the sync is queued and the job id is printed; otherwise the
command waits for the batch result.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			status, body, err := triggerSync(ctx, opts, args[0])
			if err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			return printSyncResponse(cmd.OutOrStdout(), status, body)
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "platform base URL")
	cmd.Flags().StringVar(&opts.token, "token", "", "API bearer token")
	cmd.Flags().BoolVar(&opts.async, "async", false, "queue the sync instead of waiting")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Minute, "request timeout")

	return cmd
}

func triggerSync(ctx context.Context, opts *syncOptions, integrationID string) (int, []byte, error) {
	endpoint := fmt.Sprintf("%s/api/v1/integrations/%s/sync", strings.TrimRight(opts.server, "/"), url.PathEscape(integrationID))
	if opts.async {
		endpoint += "?async=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("sync request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func printSyncResponse(w io.Writer, status int, body []byte) error {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("unexpected response (%d): %s", status, strings.TrimSpace(string(body)))
	}

	switch {
	case status == http.StatusAccepted && payload["status"] == "running":
		fmt.Fprintf(w, "sync still running; follow %v\n", payload["sync_logs"])
	case status == http.StatusAccepted:
		fmt.Fprintf(w, "queued job %v\n", payload["job_id"])
	case status >= 200 && status < 300:
		fmt.Fprintf(w, "run %v: %v/%v records synced, %v failed, %v conflicts (%v resolved)\n",
			payload["run_id"], payload["successful_records"], payload["total_records"],
			payload["failed_records"], payload["conflicts"], payload["resolved_conflicts"])
	default:
		return fmt.Errorf("sync failed (%d): %v: %v", status, payload["error"], payload["details"])
	}
	return nil
}
