package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restartCmd = &cobra.Command{
	Use:   "restart NAME",
	Short: "Restart a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := buildService()
		if err != nil {
			return err
		}
		result, err := svc.Restart(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s (%s)\n", args[0], result.Message, result.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(restartCmd)
}
