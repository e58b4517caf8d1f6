package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/gateway"
	"github.com/taskpilot/taskpilot/internal/model"
	"github.com/taskpilot/taskpilot/internal/ui"
)

var (
	createStarts    string
	createEnds      string
	createAssignees []int64

	listRefresh  bool
	listAssignee int64

	updateTitle     string
	updateStarts    string
	updateEnds      string
	updateStatus    string
	updateAssignees []int64
)

var createCmd = &cobra.Command{
	Use:     "create <title>",
	GroupID: "tasks",
	Short:   "Create a task",
	Long: `Create a task. The task appears immediately; if the server is not
reachable it gets a temporary id and syncs later.

Dates accept natural language ("tomorrow at 10am", "next friday") as well
as 2006-01-02 and "2006-01-02 15:04" forms.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		starts, err := parseWhen(createStarts)
		if err != nil {
			fatal("%v", err)
		}
		ends, err := parseWhen(createEnds)
		if err != nil {
			fatal("%v", err)
		}

		a := mustOpen()
		defer a.close()

		task, err := a.engine.Create(context.Background(), model.CreatePayload{
			Title:       args[0],
			StartsAt:    starts,
			EndsAt:      ends,
			AssigneeIDs: createAssignees,
		})
		if err != nil {
			fatal("failed to create task: %v", err)
		}

		if task.IsLocal() {
			fmt.Printf("%s Created task %d (queued for sync)\n", ui.RenderAccent("+"), task.ID)
		} else {
			fmt.Printf("%s Created task %d\n", ui.RenderPass("+"), task.ID)
		}
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "tasks",
	Short:   "List tasks",
	Long: `List cached tasks, newest change first. With --refresh the cache is
first hydrated from the server when it is reachable; tasks with
unconfirmed local changes are never overwritten.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen()
		defer a.close()

		tasks, err := a.engine.List(context.Background(), listRefresh)
		if err != nil {
			fatal("failed to list tasks: %v", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks. Create one with 'tp create <title>'.")
			return
		}

		shown := 0
		for _, t := range tasks {
			if listAssignee != 0 && !assignedTo(t, listAssignee) {
				continue
			}
			printTaskRow(t)
			shown++
		}
		if shown == 0 {
			fmt.Println("No matching tasks.")
		}
	},
}

func assignedTo(t *model.Task, userID int64) bool {
	for _, a := range t.Assignees {
		if a.ID == userID {
			return true
		}
	}
	return false
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "tasks",
	Short:   "Show one task with comments and attachments",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseTaskID(args[0])

		a := mustOpen()
		defer a.close()

		task, err := a.engine.Get(context.Background(), id)
		if err != nil {
			fatal("failed to load task %d: %v", id, err)
		}
		printTaskDetail(task)
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <id>",
	GroupID: "tasks",
	Short:   "Update a task's fields",
	Long: `Update a task. Only the flags you pass change; everything else keeps
its current value. The change applies immediately and syncs in the
background if the server is unreachable.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseTaskID(args[0])

		a := mustOpen()
		defer a.close()
		ctx := context.Background()

		current, err := a.engine.Get(ctx, id)
		if err != nil {
			fatal("failed to load task %d: %v", id, err)
		}

		payload := payloadFromTask(current)
		if cmd.Flags().Changed("title") {
			payload.Title = updateTitle
		}
		if cmd.Flags().Changed("status") {
			payload.Status = model.Status(updateStatus)
		}
		if cmd.Flags().Changed("starts") {
			payload.StartsAt, err = parseWhen(updateStarts)
			if err != nil {
				fatal("%v", err)
			}
		}
		if cmd.Flags().Changed("ends") {
			payload.EndsAt, err = parseWhen(updateEnds)
			if err != nil {
				fatal("%v", err)
			}
		}
		if cmd.Flags().Changed("assign") {
			payload.AssigneeIDs = updateAssignees
		}

		task, err := a.engine.Update(ctx, id, payload)
		reportResult(task, err, "Updated")
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <id>",
	GroupID: "tasks",
	Short:   "Mark a task done",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseTaskID(args[0])

		a := mustOpen()
		defer a.close()
		ctx := context.Background()

		current, err := a.engine.Get(ctx, id)
		if err != nil {
			fatal("failed to load task %d: %v", id, err)
		}

		payload := payloadFromTask(current)
		payload.Status = model.StatusDone

		task, err := a.engine.Update(ctx, id, payload)
		reportResult(task, err, "Done")
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <id>",
	GroupID: "tasks",
	Aliases: []string{"rm"},
	Short:   "Delete a task",
	Long: `Delete a task. A task that never reached the server is removed
locally along with everything queued for it; a synced task is removed
immediately and the deletion syncs in the background.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseTaskID(args[0])

		a := mustOpen()
		defer a.close()

		if err := a.engine.Remove(context.Background(), id); err != nil {
			fatal("failed to remove task %d: %v", id, err)
		}
		fmt.Printf("%s Removed task %d\n", ui.RenderPass("-"), id)
	},
}

var assigneesCmd = &cobra.Command{
	Use:     "assignees",
	GroupID: "tasks",
	Short:   "List assignable users",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen()
		defer a.close()

		assignees, err := a.engine.ListAssignees(context.Background())
		if err != nil {
			fatal("failed to list assignees: %v", err)
		}
		for _, u := range assignees {
			fmt.Printf("%4d  %s\n", u.ID, u.Name)
		}
	},
}

func init() {
	createCmd.Flags().StringVar(&createStarts, "starts", "", "start time")
	createCmd.Flags().StringVar(&createEnds, "ends", "", "end time")
	createCmd.Flags().Int64SliceVar(&createAssignees, "assign", nil, "assignee user ids")

	listCmd.Flags().BoolVar(&listRefresh, "refresh", false, "hydrate the cache from the server first")
	listCmd.Flags().Int64Var(&listAssignee, "assignee", 0, "only tasks assigned to this user id")

	updateCmd.Flags().StringVar(&updateTitle, "title", "", "new title")
	updateCmd.Flags().StringVar(&updateStarts, "starts", "", "new start time")
	updateCmd.Flags().StringVar(&updateEnds, "ends", "", "new end time")
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "new status (open or done)")
	updateCmd.Flags().Int64SliceVar(&updateAssignees, "assign", nil, "replace assignee user ids")

	rootCmd.AddCommand(createCmd, listCmd, showCmd, updateCmd, doneCmd, removeCmd, assigneesCmd)
}

// parseTaskID accepts the signed ids shown by list, including the negative
// ids of not-yet-synced tasks.
func parseTaskID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		fatal("invalid task id %q", s)
	}
	return id
}

// parseWhen turns natural-language or ISO-ish date input into a time.
func parseWhen(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	if r, err := w.Parse(s, time.Now()); err == nil && r != nil {
		t := r.Time
		return &t, nil
	}

	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t, nil
		}
	}

	return nil, fmt.Errorf("could not parse time %q", s)
}

// payloadFromTask seeds an update payload with the task's current values.
func payloadFromTask(t *model.Task) model.UpdatePayload {
	ids := make([]int64, 0, len(t.Assignees))
	for _, a := range t.Assignees {
		ids = append(ids, a.ID)
	}
	return model.UpdatePayload{
		Title:       t.Title,
		Status:      t.Status,
		StartsAt:    t.StartsAt,
		EndsAt:      t.EndsAt,
		AssigneeIDs: ids,
	}
}

// reportResult prints the outcome of a snapshot-returning mutation. A lost
// conflict is not an error from the user's point of view: the server's
// version was adopted and the local intent dropped.
func reportResult(t *model.Task, err error, verb string) {
	if err != nil {
		if errors.Is(err, gateway.ErrConflict) && t != nil {
			fmt.Printf("%s The server had a newer version; your change was dropped\n", ui.RenderWarn("!"))
			printTaskRow(t)
			return
		}
		fatal("%v", err)
	}
	reportMutation(t, verb)
}

func reportMutation(t *model.Task, verb string) {
	badge := ui.SyncBadge(t.IsPending, t.SyncError)
	if badge != "" {
		badge = " " + badge
	}
	fmt.Printf("%s %s task %d%s\n", ui.RenderPass("*"), verb, t.ID, badge)
}

func printTaskRow(t *model.Task) {
	status := ui.RenderMuted("open")
	if t.Status == model.StatusDone {
		status = ui.RenderPass("done")
	}

	badge := ui.SyncBadge(t.IsPending, t.SyncError)
	if badge != "" {
		badge = " " + badge
	}

	extras := ""
	if n := len(t.Comments); n > 0 {
		extras += fmt.Sprintf(" %s", ui.RenderMuted(fmt.Sprintf("(%d comments)", n)))
	}
	if n := len(t.Attachments); n > 0 {
		extras += fmt.Sprintf(" %s", ui.RenderMuted(fmt.Sprintf("(%d files)", n)))
	}

	fmt.Printf("%6d  [%s]  %s%s%s\n", t.ID, status, ui.RenderBold(t.Title), badge, extras)
}

func printTaskDetail(t *model.Task) {
	fmt.Printf("\n%s %s\n", ui.RenderBold(fmt.Sprintf("#%d", t.ID)), ui.RenderBold(t.Title))
	fmt.Printf("Status: %s", t.Status)
	if badge := ui.SyncBadge(t.IsPending, t.SyncError); badge != "" {
		fmt.Printf("  %s", badge)
	}
	fmt.Println()

	if t.StartsAt != nil {
		fmt.Printf("Starts: %s\n", t.StartsAt.Format("2006-01-02 15:04"))
	}
	if t.EndsAt != nil {
		fmt.Printf("Ends:   %s\n", t.EndsAt.Format("2006-01-02 15:04"))
	}
	if len(t.Assignees) > 0 {
		fmt.Print("Assigned to:")
		for _, a := range t.Assignees {
			fmt.Printf(" %s", a.Name)
		}
		fmt.Println()
	}

	if len(t.Comments) > 0 {
		fmt.Printf("\n%s\n", ui.RenderAccent("Comments"))
		for _, c := range t.Comments {
			badge := ui.SyncBadge(c.Pending, c.SyncError)
			if badge != "" {
				badge = " " + badge
			}
			author := c.AuthorName
			if author == "" {
				author = "me"
			}
			fmt.Printf("  [%d] %s%s: %s\n", c.ID, author, badge, c.Body)
		}
	}

	if len(t.Attachments) > 0 {
		fmt.Printf("\n%s\n", ui.RenderAccent("Attachments"))
		for _, at := range t.Attachments {
			fmt.Printf("  [%d] %s\n", at.ID, at.FileName)
		}
	}
	fmt.Println()
}
