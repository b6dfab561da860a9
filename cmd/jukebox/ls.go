package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func lsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List the branch's merged song library",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := fromContext(cmd)
			app.settle()

			songs := app.library.Songs()
			if len(songs) == 0 {
				fmt.Printf("no songs on %s\n", app.branch)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tTITLE\tARTIST\tOLD\tID")
			for i, song := range songs {
				old := ""
				if song.IsOld {
					old = "yes"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, song.Title, song.Artist, old, song.ID)
			}
			return w.Flush()
		},
	}
}
