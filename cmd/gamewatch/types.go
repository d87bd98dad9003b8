package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gamewatch/gamewatch-go/pkg/gamewatch"
)

var typesShowGames bool

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List event types",
	Long: `List the event type names accepted by --types, --include-types and
--exclude-types. With --games, list the built-in log parsers instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := ValidEventTypeNames()
		if typesShowGames {
			names = gamewatch.BuiltinNames()
		}
		out := cmd.OutOrStdout()
		for _, n := range names {
			if _, err := fmt.Fprintln(out, n); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	typesCmd.Flags().BoolVar(&typesShowGames, "games", false,
		"List built-in log parsers")
	rootCmd.AddCommand(typesCmd)
}
