package main

import (
	"context"

	"github.com/spf13/cobra"
)

func playlistCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playlist",
		Short: "Playlist commands",
	}

	cmd.AddCommand(playlistListCommand())
	cmd.AddCommand(playlistAddCommand())

	return cmd
}

func playlistListCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "ls",
		Short:       "List your playlists",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{localAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.ListPlaylists(ctx)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func playlistAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "add <number|playlistId>",
		Short:       "Add the currently playing track to a playlist",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{localAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), 3*app.timeout)
			defer cancel()

			result, err := app.service.AddCurrentToPlaylist(ctx, args[0])
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}
