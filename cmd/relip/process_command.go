package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"relip/internal/faces"
	"relip/internal/pipeline"
	"relip/internal/queue"
	"relip/internal/workflow"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Drain pending jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			locator, err := faces.LoadLocator(cfg.Paths.CascadeDir, detectorSettings(cfg))
			if err != nil {
				return err
			}
			p, err := pipeline.New(pipeline.Options{
				Config:  cfg,
				Logger:  logger,
				Locator: locator,
			})
			if err != nil {
				return err
			}

			manager := workflow.NewManager(cfg, store, p, logger)
			processed, err := manager.Drain(cmd.Context())
			if err != nil {
				if errors.Is(err, workflow.ErrLockHeld) {
					return fmt.Errorf("another relip process is already draining the queue")
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d job(s)\n", processed)
			return nil
		},
	}
}
