package main

import (
	"context"

	"github.com/spf13/cobra"
)

func countCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "count <track-id>",
		Short: "Show how many times a track was logged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.PlayCount(ctx, args[0])
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func tempoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tempo <track-id>",
		Short: "Show a track's tempo compared with the previous query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Tempo(ctx, args[0])
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func topCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "top [limit]",
		Short: "Show your top artists (limit 1-20)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			limit := ""
			if len(args) == 1 {
				limit = args[0]
			}
			result, err := app.service.TopArtists(ctx, limit)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func lsCommand() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.ListNodes(ctx, kind)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind")
	return cmd
}

func historyCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:         "history",
		Short:       "Show the logged listening history",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{localAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			result, err := app.service.History(limit)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show (0 for all)")
	return cmd
}
