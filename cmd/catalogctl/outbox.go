package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/Lydia02/E-Library-sub000/internal/di/providers"
	"github.com/Lydia02/E-Library-sub000/internal/domain"
	"github.com/Lydia02/E-Library-sub000/internal/store/sqlite"
)

var (
	outboxStatus string
	outboxLimit  int
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and manage the sync outbox",
	Long:  "List sync tasks waiting for retry and return dead tasks to the queue.",
}

var outboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sync tasks",
	Args:  cobra.NoArgs,
	RunE:  runOutboxList,
}

var outboxRequeueCmd = &cobra.Command{
	Use:   "requeue [task-id]",
	Short: "Return dead tasks to the queue",
	Long:  "Return a dead task, or every dead task when no id is given, to the pending queue with a fresh attempt budget.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOutboxRequeue,
}

func init() {
	outboxListCmd.Flags().StringVar(&outboxStatus, "status", "",
		"Only list tasks with this status: pending or dead")
	outboxListCmd.Flags().IntVar(&outboxLimit, "limit", 50,
		"Maximum tasks to list (0 lists all)")

	outboxCmd.AddCommand(outboxListCmd)
	outboxCmd.AddCommand(outboxRequeueCmd)
}

// openOutbox returns the configured outbox. The caller shuts the container down.
func openOutbox() (*sqlite.Outbox, func(), error) {
	injector, cfg, err := newContainer()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = injector.Shutdown() }
	if !cfg.Sync.OutboxEnabled {
		closeFn()
		return nil, nil, errors.New("the sync outbox is disabled (SYNC_OUTBOX_ENABLED=false)")
	}

	h, err := do.Invoke[*providers.OutboxHandle](injector)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return h.Outbox, closeFn, nil
}

func runOutboxList(cmd *cobra.Command, args []string) error {
	status := domain.TaskStatus(outboxStatus)
	switch status {
	case "", domain.TaskPending, domain.TaskDead:
	default:
		return fmt.Errorf("invalid status %q (must be pending or dead)", outboxStatus)
	}

	outbox, closeFn, err := openOutbox()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := cmd.Context()
	counts, err := outbox.Counts(ctx)
	if err != nil {
		return err
	}
	tasks, err := outbox.List(ctx, status, outboxLimit)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"tasks":   tasks,
			"pending": counts[domain.TaskPending],
			"dead":    counts[domain.TaskDead],
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d pending, %d dead\n", counts[domain.TaskPending], counts[domain.TaskDead])
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks found.")
		return nil
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "ID\tKIND\tOP\tPRIMARY ID\tSTATUS\tATTEMPTS\tNEXT ATTEMPT\tLAST ERROR")
	for _, t := range tasks {
		primaryID := t.PrimaryID
		if primaryID == "" {
			primaryID = "-"
		}
		lastError := t.LastError
		if lastError == "" {
			lastError = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			t.ID, t.Kind, t.Op, primaryID, t.Status, t.Attempts,
			t.NextAttemptAt.Local().Format(time.DateTime), lastError)
	}
	return w.Flush()
}

func runOutboxRequeue(cmd *cobra.Command, args []string) error {
	var id string
	if len(args) == 1 {
		id = args[0]
	}

	outbox, closeFn, err := openOutbox()
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := outbox.Requeue(cmd.Context(), id)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"requeued": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d task(s).\n", n)
	return nil
}
