package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cutiefunny/musclecat/internal/modules/libraryadmin"
)

func moveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "move <index> <up|down>",
		Short: "Move a song one position in the list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			app.settle()

			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be a number: %q", args[0])
			}
			var dir libraryadmin.Direction
			switch args[1] {
			case "up":
				dir = libraryadmin.MoveUp
			case "down":
				dir = libraryadmin.MoveDown
			default:
				return fmt.Errorf("direction must be up or down, got %q", args[1])
			}

			return app.admin.MoveSong(app.branch, index, dir)
		},
	}
}
