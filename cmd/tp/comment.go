package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/ui"
)

var commentCmd = &cobra.Command{
	Use:     "comment",
	GroupID: "tasks",
	Short:   "Manage task comments",
}

var commentAddCmd = &cobra.Command{
	Use:   "add <task-id> <body>",
	Short: "Add a comment to a task",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseTaskID(args[0])

		a := mustOpen()
		defer a.close()

		task, err := a.engine.AddComment(context.Background(), id, args[1])
		reportResult(task, err, "Commented on")
	},
}

var commentRemoveCmd = &cobra.Command{
	Use:     "remove <task-id> <comment-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a comment",
	Long: `Delete a comment. A comment that never reached the server is simply
withdrawn from the queue; a synced comment is removed and the deletion
syncs in the background.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		taskID := parseTaskID(args[0])
		commentID := parseTaskID(args[1])

		a := mustOpen()
		defer a.close()

		task, err := a.engine.RemoveComment(context.Background(), taskID, commentID)
		if err != nil {
			fatal("failed to remove comment: %v", err)
		}

		fmt.Printf("%s Removed comment %d from task %d", ui.RenderPass("-"), commentID, task.ID)
		if badge := ui.SyncBadge(task.IsPending, task.SyncError); badge != "" {
			fmt.Printf(" %s", badge)
		}
		fmt.Println()
	},
}

func init() {
	commentCmd.AddCommand(commentAddCmd, commentRemoveCmd)
	rootCmd.AddCommand(commentCmd)
}
