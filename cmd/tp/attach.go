package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/model"
	"github.com/taskpilot/taskpilot/internal/ui"
)

var attachCmd = &cobra.Command{
	Use:     "attach",
	GroupID: "tasks",
	Short:   "Manage task attachments",
}

var attachAddCmd = &cobra.Command{
	Use:   "add <task-id> <file>...",
	Short: "Attach files to a task",
	Long: `Attach one or more files to a task. All files go up as one batch.
If the server is unreachable the batch is stored locally and uploaded
when connectivity returns.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseTaskID(args[0])

		files := make([]model.BatchFile, 0, len(args)-1)
		for _, path := range args[1:] {
			data, err := os.ReadFile(path)
			if err != nil {
				fatal("failed to read %s: %v", path, err)
			}
			files = append(files, model.BatchFile{Name: filepath.Base(path), Data: data})
		}

		a := mustOpen()
		defer a.close()

		task, err := a.engine.UploadAttachments(context.Background(), id, files)
		if err != nil {
			fatal("failed to attach files: %v", err)
		}

		if task.IsPending {
			fmt.Printf("%s Queued %d file(s) for task %d\n", ui.RenderAccent("^"), len(files), task.ID)
		} else {
			fmt.Printf("%s Attached %d file(s) to task %d\n", ui.RenderPass("^"), len(files), task.ID)
		}
	},
}

var attachRemoveCmd = &cobra.Command{
	Use:     "remove <task-id> <attachment-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an attachment",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		taskID := parseTaskID(args[0])
		attachmentID := parseTaskID(args[1])

		a := mustOpen()
		defer a.close()

		task, err := a.engine.RemoveAttachment(context.Background(), taskID, attachmentID)
		if err != nil {
			fatal("failed to remove attachment: %v", err)
		}

		fmt.Printf("%s Removed attachment %d from task %d", ui.RenderPass("-"), attachmentID, task.ID)
		if badge := ui.SyncBadge(task.IsPending, task.SyncError); badge != "" {
			fmt.Printf(" %s", badge)
		}
		fmt.Println()
	},
}

func init() {
	attachCmd.AddCommand(attachAddCmd, attachRemoveCmd)
	rootCmd.AddCommand(attachCmd)
}
