package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

func sendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a playback command to the branch device",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "next",
			Short: "Skip to the next song",
			RunE: func(cmd *cobra.Command, _ []string) error {
				app := fromContext(cmd)
				return app.sender.SendNext(app.branch)
			},
		},
		&cobra.Command{
			Use:   "prev",
			Short: "Go back one song",
			RunE: func(cmd *cobra.Command, _ []string) error {
				app := fromContext(cmd)
				return app.sender.SendPrev(app.branch)
			},
		},
		&cobra.Command{
			Use:   "shuffle",
			Short: "Toggle shuffle",
			RunE: func(cmd *cobra.Command, _ []string) error {
				app := fromContext(cmd)
				return app.sender.SendToggleShuffle(app.branch)
			},
		},
		&cobra.Command{
			Use:   "repeat <off|one|all>",
			Short: "Set the repeat mode",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				app := fromContext(cmd)
				mode, err := jukebox.ParseRepeatMode(args[0])
				if err != nil {
					return err
				}
				return app.sender.SendSetRepeat(app.branch, mode)
			},
		},
		&cobra.Command{
			Use:   "play <song-id>",
			Short: "Play one song directly",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				app := fromContext(cmd)
				app.settle()

				song, err := app.findSong(args[0])
				if err != nil {
					return err
				}
				if err := app.sender.SendPlaySong(app.branch, song); err != nil {
					return err
				}
				fmt.Printf("playing %s - %s on %s\n", song.Artist, song.Title, app.branch)
				return nil
			},
		},
	)

	return cmd
}
