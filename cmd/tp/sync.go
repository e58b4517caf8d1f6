package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Replay queued changes now",
	Long: `Force an immediate replay of every queued change, ignoring the backoff
schedule. Useful after fixing connectivity by hand.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen()
		defer a.close()
		ctx := context.Background()

		before, err := a.engine.QueueDepth()
		if err != nil {
			fatal("failed to read queue: %v", err)
		}
		if before == 0 {
			fmt.Printf("%s Nothing queued\n", ui.RenderPass("="))
			return
		}

		start := time.Now()
		if err := a.engine.ForceSyncNow(ctx); err != nil {
			fatal("sync failed: %v", err)
		}

		after, err := a.engine.QueueDepth()
		if err != nil {
			fatal("failed to read queue: %v", err)
		}

		done := before - after
		elapsed := time.Since(start).Round(time.Millisecond)
		if after == 0 {
			fmt.Printf("%s Synced %d change(s) in %v\n", ui.RenderPass("="), done, elapsed)
		} else {
			fmt.Printf("%s Synced %d change(s), %d still queued\n", ui.RenderWarn("="), done, after)
		}
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the pending queue",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen()
		defer a.close()

		entries, err := a.engine.Entries()
		if err != nil {
			fatal("failed to read queue: %v", err)
		}
		letters, err := a.engine.ListDeadLetters()
		if err != nil {
			fatal("failed to read dead letters: %v", err)
		}

		if len(entries) == 0 {
			fmt.Printf("%s Queue empty\n", ui.RenderPass("="))
		} else {
			fmt.Printf("%s %d change(s) queued\n\n", ui.RenderAccent("="), len(entries))
			now := time.Now()
			for _, e := range entries {
				due := "due now"
				if e.NextRetryAt.After(now) {
					due = "due in " + e.NextRetryAt.Sub(now).Round(time.Second).String()
				}
				line := fmt.Sprintf("  %-17s task %-6d %s", e.Op, e.TaskID, due)
				if e.RetryCount > 0 {
					line += ui.RenderWarn(fmt.Sprintf("  (%d failed attempts: %s)", e.RetryCount, e.LastError))
				}
				fmt.Println(line)
			}
		}

		if len(letters) > 0 {
			fmt.Printf("\n%s %d change(s) gave up, see 'tp deadletter list'\n", ui.RenderFail("!"), len(letters))
		}
	},
}

func init() {
	syncCmd.AddCommand(syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}
