package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type runOptions struct {
	BaseURL        string
	SolicitationID string
	Agents         []string
	AgentHeader    string
	Attempts       int
	OutPath        string
	Release        bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run --solicitation <uuid> --agent <uuid> [--agent <uuid>...]",
		Short: "Race claims for one solicitation and write a claim_race_report.v1 JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validate(); err != nil {
				return err
			}

			client := newHTTPClient()
			if err := smokeCheck(cmd.Context(), client, opts.BaseURL); err != nil {
				return err
			}

			report := raceReportV1{
				SchemaVersion:  1,
				RunID:          uuid.NewString(),
				StartedAt:      time.Now().UTC().Format(time.RFC3339),
				BaseURL:        opts.BaseURL,
				SolicitationID: opts.SolicitationID,
				Attempts:       opts.Attempts,
			}
			t := race(cmd.Context(), client, opts)
			report.FinishedAt = time.Now().UTC().Format(time.RFC3339)
			t.fill(&report)
			report.Exclusive = t.exclusive()

			if opts.Release {
				for _, agentID := range opts.Agents {
					_ = claimRequest(cmd.Context(), client, opts, http.MethodDelete, agentID)
				}
			}

			if err := writeReport(opts.OutPath, report); err != nil {
				return err
			}
			if !report.Exclusive {
				return fmt.Errorf("exclusivity violated: %d claims created", report.Statuses["201"])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "http://localhost:3200", "server base URL")
	cmd.Flags().StringVar(&opts.SolicitationID, "solicitation", "", "solicitation UUID (required)")
	cmd.Flags().StringSliceVar(&opts.Agents, "agent", nil, "agent UUID of the racing store, repeatable (required)")
	cmd.Flags().StringVar(&opts.AgentHeader, "agent-header", "X-Agent-ID", "header carrying the agent identity")
	cmd.Flags().IntVar(&opts.Attempts, "attempts", 16, "concurrent claim requests")
	cmd.Flags().StringVar(&opts.OutPath, "out", "", "report path (default stdout)")
	cmd.Flags().BoolVar(&opts.Release, "release", false, "release the claim afterwards")

	return cmd
}

func (o *runOptions) validate() error {
	if strings.TrimSpace(o.BaseURL) == "" {
		return errors.New("--base-url is required")
	}
	if _, err := uuid.Parse(o.SolicitationID); err != nil {
		return errors.New("--solicitation must be a uuid")
	}
	if len(o.Agents) == 0 {
		return errors.New("at least one --agent is required")
	}
	for _, a := range o.Agents {
		if _, err := uuid.Parse(a); err != nil {
			return fmt.Errorf("--agent %q is not a uuid", a)
		}
	}
	if o.Attempts <= 0 {
		return errors.New("--attempts must be positive")
	}
	return nil
}

// race releases all requests at once and waits for every answer.
func race(ctx context.Context, client *http.Client, opts runOptions) *tally {
	t := newTally()
	start := make(chan struct{})
	wg := sync.WaitGroup{}
	wg.Add(opts.Attempts)
	for i := 0; i < opts.Attempts; i++ {
		agentID := opts.Agents[i%len(opts.Agents)]
		go func() {
			defer wg.Done()
			<-start
			t.record(claimRequest(ctx, client, opts, http.MethodPost, agentID))
		}()
	}
	close(start)
	wg.Wait()
	return t
}

func claimRequest(ctx context.Context, client *http.Client, opts runOptions, method, agentID string) attemptResult {
	url := fmt.Sprintf("%s/attendance/api/solicitations/%s/claim", strings.TrimRight(opts.BaseURL, "/"), opts.SolicitationID)
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return attemptResult{AgentID: agentID, Err: err}
	}
	req.Header.Set(opts.AgentHeader, agentID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := client.Do(req)
	if err != nil {
		return attemptResult{AgentID: agentID, Err: err}
	}
	_ = resp.Body.Close()
	return attemptResult{AgentID: agentID, StatusCode: resp.StatusCode}
}

func writeReport(path string, report raceReportV1) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err = fmt.Fprintln(os.Stdout, string(data))
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
