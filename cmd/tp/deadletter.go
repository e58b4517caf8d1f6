package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/ui"
)

var discardYes bool

var deadletterCmd = &cobra.Command{
	Use:     "deadletter",
	GroupID: "sync",
	Short:   "Inspect changes that gave up syncing",
	Long: `A queued change that keeps failing is eventually parked here instead
of retrying forever. Parked changes never retry on their own: retry or
discard them explicitly.`,
}

var deadletterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List parked changes",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen()
		defer a.close()

		letters, err := a.engine.ListDeadLetters()
		if err != nil {
			fatal("failed to list dead letters: %v", err)
		}
		if len(letters) == 0 {
			fmt.Printf("%s No parked changes\n", ui.RenderPass("="))
			return
		}

		for _, d := range letters {
			fmt.Printf("%s %s\n", ui.RenderFail("!"), ui.RenderBold(d.ID))
			fmt.Printf("   %s on task %d, gave up %s after %d attempts\n",
				d.Op, d.TaskID, d.FailedAt.Format("2006-01-02 15:04"), d.RetryCount)
			fmt.Printf("   %s\n", ui.RenderMuted(d.Reason))
		}
	},
}

var deadletterRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Re-queue a parked change with a fresh retry budget",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen()
		defer a.close()

		if err := a.engine.RetryDeadLetter(args[0]); err != nil {
			fatal("failed to retry: %v", err)
		}
		fmt.Printf("%s Re-queued %s\n", ui.RenderPass("="), args[0])
	},
}

var deadletterDiscardCmd = &cobra.Command{
	Use:   "discard <id>",
	Short: "Abandon a parked change permanently",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen()
		defer a.close()

		letter, err := a.engine.ListDeadLetters()
		if err != nil {
			fatal("failed to read dead letters: %v", err)
		}
		var found bool
		for _, d := range letter {
			if d.ID == args[0] {
				found = true
				break
			}
		}
		if !found {
			fatal("no parked change with id %s", args[0])
		}

		if !discardYes {
			var confirmed bool
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Discard change %s permanently?", args[0])).
					Description("The change and any queued files are lost for good.").
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				fatal("%v", err)
			}
			if !confirmed {
				fmt.Println("Aborted")
				return
			}
		}

		if err := a.engine.DiscardDeadLetter(args[0]); err != nil {
			fatal("failed to discard: %v", err)
		}
		fmt.Printf("%s Discarded %s\n", ui.RenderPass("-"), args[0])
	},
}

func init() {
	deadletterDiscardCmd.Flags().BoolVarP(&discardYes, "yes", "y", false, "skip the confirmation prompt")
	deadletterCmd.AddCommand(deadletterListCmd, deadletterRetryCmd, deadletterDiscardCmd)
	rootCmd.AddCommand(deadletterCmd)
}
