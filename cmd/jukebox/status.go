package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

func statusCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what every branch device is playing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := fromContext(cmd)
			if err := app.monitor.Start(); err != nil {
				return err
			}
			defer app.monitor.Stop()
			app.settle()

			if err := printStatuses(app); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			// Repaint on every status change until interrupted.
			changed := make(chan struct{}, 1)
			app.monitor.SetOnChange(func(string, *jukebox.StatusSnapshot) {
				select {
				case changed <- struct{}{}:
				default:
				}
			})

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			for {
				select {
				case <-changed:
					if err := printStatuses(app); err != nil {
						return err
					}
				case <-stop:
					return nil
				}
			}
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep watching for changes")
	return cmd
}

func printStatuses(app *app) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BRANCH\tSTATE\tSHUFFLE\tREPEAT\tNOW PLAYING\tUPDATED")
	for _, branch := range []string{jukebox.Branch1, jukebox.Branch2} {
		snap := app.monitor.Status(branch)
		if snap == nil {
			fmt.Fprintf(w, "%s\tnot connected\t\t\t\t\n", branch)
			continue
		}

		state := "paused"
		if snap.IsPlaying {
			state = "playing"
		}
		shuffle := "off"
		if snap.IsShuffle {
			shuffle = "on"
		}
		now := "-"
		if snap.CurrentSong != nil {
			now = fmt.Sprintf("%s - %s", snap.CurrentSong.Artist, snap.CurrentSong.Title)
		}
		updated := time.UnixMilli(snap.UpdatedAt).Format(time.TimeOnly)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", branch, state, shuffle, string(snap.RepeatMode), now, updated)
	}
	return w.Flush()
}
