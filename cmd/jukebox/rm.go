package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func rmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <song-id>",
		Short: "Delete a song, its audio blob, and its document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			app.settle()

			song, err := app.findSong(args[0])
			if err != nil {
				return err
			}
			if err := app.admin.DeleteSong(context.Background(), app.branch, song); err != nil {
				return err
			}
			fmt.Printf("deleted %s - %s\n", song.Artist, song.Title)
			return nil
		},
	}
}
