package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/web/live"
)

func newWatchCmd() *cobra.Command {
	var remote bool
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream tournament changes as they happen",
		Long: `Print every player and match change as it arrives, with the running
tournament totals.

By default changes come from the local cache over the configured store. With
--remote they are streamed from a running server's /events feed instead.

Press Ctrl+C to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			if remote {
				return streamRemote(ctx, cmd.OutOrStdout())
			}
			return watchLocal(ctx, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Stream from the server at --server instead of the store")
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop after this long (default: until interrupted)")

	return cmd
}

// watchLocal prints cache changes until ctx is done
func watchLocal(ctx context.Context, w io.Writer) error {
	updates := make(chan live.Update, 64)
	unlisten := app.Cache.Listen(func(ev model.ChangeEvent) {
		select {
		case updates <- live.NewUpdate(ev, app.Cache.Stats()):
		default:
		}
	})
	defer unlisten()

	stats := app.Cache.Stats()
	if cfg.Output != "json" {
		fmt.Fprintf(w, "Watching: %d players, %d matches (%d live)\n", stats.Players, stats.Matches, stats.Live)
	}

	for {
		select {
		case <-ctx.Done():
			if cfg.Output != "json" {
				fmt.Fprintln(w, "Stopped")
			}
			return nil
		case u := <-updates:
			printUpdate(w, time.Now(), u)
		}
	}
}

// streamRemote follows the server's SSE feed until ctx is done
func streamRemote(ctx context.Context, w io.Writer) error {
	url := strings.TrimSuffix(cfg.ServerURL, "/") + "/events"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// No timeout for SSE
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	var event string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		case line == "":
			// End of event
			handleFrame(w, event, strings.Join(dataLines, "\n"))
			event = ""
			dataLines = nil
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream error: %w", err)
	}
	if cfg.Output != "json" {
		fmt.Fprintln(w, "Disconnected")
	}
	return nil
}

func handleFrame(w io.Writer, event, data string) {
	switch event {
	case live.EventConnected:
		if cfg.Output != "json" {
			fmt.Fprintf(w, "Connected to %s\n", cfg.ServerURL)
		}
	case live.EventChange:
		var u live.Update
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			return
		}
		printUpdate(w, time.Now(), u)
	}
}

// watchLine is one change in JSON output
type watchLine struct {
	Time time.Time `json:"time"`
	live.Update
}

func printUpdate(w io.Writer, now time.Time, u live.Update) {
	if cfg.Output == "json" {
		data, _ := json.Marshal(watchLine{Time: now, Update: u})
		fmt.Fprintln(w, string(data))
		return
	}

	subject := string(u.Collection)
	if u.ID != "" {
		subject += " " + u.ID
	}
	fmt.Fprintf(w, "[%s] %s %s (players %d, live %d, finished %d)\n",
		now.Format("15:04:05"), u.Kind, subject, u.Stats.Players, u.Stats.Live, u.Stats.Finished)
}
