package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mediagrab/internal/models"
	"mediagrab/internal/session"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var formatFlag string
	var pathFlag string

	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Download one format of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if formatFlag == "" {
				return errors.New("--format is required")
			}
			category := models.CategoryVideo
			if formatFlag == models.BestAudioFormatID {
				category = models.CategoryAudio
			}

			r, err := ctx.startSession(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer r.close()

			runCtx, cancel := ctx.deadline(cmd.Context())
			defer cancel()

			if _, err := r.scan(runCtx, args[0], category); err != nil {
				return err
			}
			r.orch.SetDestination(pathFlag)
			if err := r.orch.Download(formatFlag); err != nil {
				return err
			}

			printer := newProgressPrinter(cmd.OutOrStdout())
			ev, err := session.Await(runCtx, r.events,
				func(ev session.Event) {
					if ev.Kind == session.EventJob && ev.Job != nil {
						printer.update(*ev.Job)
					}
				},
				func(ev session.Event) bool {
					return ev.Kind == session.EventJob && ev.Job != nil && ev.Job.Phase.IsTerminal()
				})
			printer.done()
			if err != nil {
				if cancelErr := r.orch.Cancel(); cancelErr != nil {
					r.logger.Debug("cancel after wait failed", "error", cancelErr)
				}
				return fmt.Errorf("download %s: %w", formatFlag, err)
			}

			switch ev.Job.Phase {
			case models.PhaseErrored:
				return fmt.Errorf("download %s: %s", formatFlag, ev.Job.Message)
			case models.PhaseCancelled:
				return fmt.Errorf("download %s: cancelled", formatFlag)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Saved to %s\n", ev.Job.Message, ev.Job.DestinationPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Format id to download, or best_audio")
	cmd.Flags().StringVarP(&pathFlag, "path", "p", "", "Destination directory passed to the backend")
	return cmd
}
