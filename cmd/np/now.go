package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/nowplaying/internal/core"
	"github.com/mikey-austin/nowplaying/pkg/np"
)

func nowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Announce the currently playing track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.announceBudget()+app.timeout)
			defer cancel()

			result, err := app.service.CheckNowPlaying(ctx, &core.Tracker{})
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func watchCommand() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the music service and announce every track change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			if interval <= 0 {
				return usageError("interval must be positive")
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tracker := &core.Tracker{}
			last := core.Unchanged
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				change, err := watchOnce(ctx, app, tracker, last)
				if err != nil {
					// a failed poll is reported and retried on the next tick
					fmt.Fprintln(os.Stderr, "error:", err)
				} else {
					last = change
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "poll interval")
	return cmd
}

func watchOnce(ctx context.Context, app *app, tracker *core.Tracker, last core.Change) (core.Change, error) {
	pollCtx, cancel := withTimeout(ctx, app.announceBudget()+app.timeout)
	defer cancel()

	result, err := app.service.CheckNowPlaying(pollCtx, tracker)
	if err != nil {
		return last, err
	}
	if result.Change == core.Unchanged || (result.Change == core.NothingPlaying && last == core.NothingPlaying) {
		return result.Change, nil
	}
	return result.Change, app.printer.Print(result)
}

func announceCommand() *cobra.Command {
	var title, artist, album string

	cmd := &cobra.Command{
		Use:   "announce <track-id>",
		Short: "Broadcast a track and query its play count and tempo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.announceBudget())
			defer cancel()

			track := np.TrackEnvelope{
				TrackID: strings.TrimSpace(args[0]),
				Title:   title,
				Artist:  artist,
				Album:   album,
			}
			result, err := app.service.Announce(ctx, track)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "track title")
	cmd.Flags().StringVar(&artist, "artist", "", "track artist")
	cmd.Flags().StringVar(&album, "album", "", "album name")
	return cmd
}
