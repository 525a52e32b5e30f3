package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:     "remove NAME",
	Aliases: []string{"rm"},
	Short:   "Remove a container",
	Long: `Remove a container regardless of its state. The container's persistent
data directory is kept; re-running under the same name reattaches it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := buildService()
		if err != nil {
			return err
		}
		result, err := svc.Remove(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", args[0], result.Message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
