package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"relip/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage enhancement jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newQueueAddCommand(ctx))
	cmd.AddCommand(newQueueListCommand(ctx))
	cmd.AddCommand(newQueueRetryCommand(ctx))
	cmd.AddCommand(newQueueClearCommand(ctx))
	cmd.AddCommand(newQueueStatsCommand(ctx))
	return cmd
}

func (c *commandContext) withStore(fn func(*queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var syncedPath, originalPath, outputPath string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue an enhancement job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				job, err := store.Add(cmd.Context(), syncedPath, originalPath, outputPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d (%s)\n", job.ID, job.Token)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&syncedPath, "synced", "", "Lip-synced input video")
	cmd.Flags().StringVar(&originalPath, "original", "", "Original source video")
	cmd.Flags().StringVar(&outputPath, "output", "", "Output video path")
	_ = cmd.MarkFlagRequired("synced")
	_ = cmd.MarkFlagRequired("original")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []queue.Status
			if trimmed := strings.TrimSpace(statusFlag); trimmed != "" {
				status, ok := queue.ParseStatus(trimmed)
				if !ok {
					return fmt.Errorf("unknown status %q", trimmed)
				}
				statuses = append(statuses, status)
			}

			return ctx.withStore(func(store *queue.Store) error {
				jobs, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					detail := job.ProgressMessage
					if job.Status == queue.StatusFailed {
						detail = job.ErrorMessage
					}
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						string(job.Status),
						fmt.Sprintf("%.0f%%", job.ProgressPercent),
						job.SyncedPath,
						job.OutputPath,
						detail,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Status", "Progress", "Synced", "Output", "Detail"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (pending, running, completed, failed)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Return a failed job to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			return ctx.withStore(func(store *queue.Store) error {
				if err := store.Retry(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d returned to pending\n", id)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove completed and failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := []queue.Status(nil)
			if all {
				statuses = queue.AllStatuses()
			}
			return ctx.withStore(func(store *queue.Store) error {
				removed, err := store.Clear(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove jobs in every status, including pending")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"pending", strconv.Itoa(stats.Pending)},
					{"running", strconv.Itoa(stats.Running)},
					{"completed", strconv.Itoa(stats.Completed)},
					{"failed", strconv.Itoa(stats.Failed)},
					{"total", strconv.Itoa(stats.Total)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Status", "Jobs"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}
