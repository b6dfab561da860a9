package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func editCommand() *cobra.Command {
	var title, artist string

	cmd := &cobra.Command{
		Use:   "edit <song-id>",
		Short: "Edit a song's title and artist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			app.settle()

			song, err := app.findSong(args[0])
			if err != nil {
				return err
			}
			if title == "" {
				title = song.Title
			}
			if artist == "" {
				artist = song.Artist
			}

			app.admin.StartEdit(song)
			if err := app.admin.SaveEdit(app.branch, song.ID, title, artist); err != nil {
				return err
			}
			fmt.Printf("updated %s - %s\n", artist, title)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&artist, "artist", "", "new artist")
	return cmd
}
