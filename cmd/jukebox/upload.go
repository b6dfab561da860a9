package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func uploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload audio files named \"Artist - Title.mp3\" to the branch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)

			success := 0
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					continue
				}
				song, err := app.admin.Upload(context.Background(), app.branch, filepath.Base(path), f)
				f.Close()
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					continue
				}
				fmt.Printf("uploaded %s - %s (%s)\n", song.Artist, song.Title, song.ID)
				success++
			}

			if success < len(args) {
				return fmt.Errorf("uploaded %d of %d files", success, len(args))
			}
			return nil
		},
	}
}
