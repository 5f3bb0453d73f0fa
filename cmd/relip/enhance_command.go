package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"relip/internal/faces"
	"relip/internal/pipeline"
)

func newEnhanceCommand(ctx *commandContext) *cobra.Command {
	var syncedPath, originalPath, outputPath string

	cmd := &cobra.Command{
		Use:   "enhance",
		Short: "Run one enhancement job end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			locator, err := faces.LoadLocator(cfg.Paths.CascadeDir, detectorSettings(cfg))
			if err != nil {
				return err
			}

			opts := pipeline.Options{
				Config:  cfg,
				Logger:  logger,
				Locator: locator,
			}
			if progressEnabled() {
				var bar *progressbar.ProgressBar
				opts.Progress = func(done, total int) {
					if bar == nil {
						if total <= 0 {
							total = -1
						}
						bar = progressbar.NewOptions(total,
							progressbar.OptionSetDescription("Enhancing"),
							progressbar.OptionSetWriter(os.Stderr),
							progressbar.OptionShowCount(),
						)
					}
					_ = bar.Set(done)
				}
			}

			p, err := pipeline.New(opts)
			if err != nil {
				return err
			}
			result, err := p.Run(cmd.Context(), pipeline.Request{
				SyncedPath:   syncedPath,
				OriginalPath: originalPath,
				OutputPath:   outputPath,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d frames, %d without a face, %s)\n",
				outputPath, result.Frames, result.NoFace, result.Duration.Round(timeRounding))
			return nil
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

func progressEnabled() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
