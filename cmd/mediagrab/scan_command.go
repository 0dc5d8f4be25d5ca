package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediagrab/internal/models"
	"mediagrab/internal/session"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var categoryFlag string

	cmd := &cobra.Command{
		Use:   "scan <url>",
		Short: "List the downloadable formats of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := models.ParseCategory(categoryFlag)
			if err != nil {
				return err
			}
			r, err := ctx.startSession(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer r.close()

			runCtx, cancel := ctx.deadline(cmd.Context())
			defer cancel()

			snap, err := r.scan(runCtx, args[0], category)
			if err != nil {
				return err
			}
			printSummary(cmd, snap)
			fmt.Fprintln(cmd.OutOrStdout(), renderCatalog(snap.Catalog))
			return nil
		},
	}

	cmd.Flags().StringVar(&categoryFlag, "category", string(models.CategoryVideo), "Catalog to list (video or audio)")
	return cmd
}

func printSummary(cmd *cobra.Command, snap session.Snapshot) {
	if snap.Media == nil {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, snap.Media.Title)
	if snap.Media.Author != "" || snap.Media.Duration != "" {
		fmt.Fprintf(out, "%s  %s\n", snap.Media.Author, snap.Media.Duration)
	}
}
