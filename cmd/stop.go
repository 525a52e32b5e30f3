package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop NAME",
	Short: "Stop a running container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := buildService()
		if err != nil {
			return err
		}
		result, err := svc.Stop(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s (%s)\n", args[0], result.Message, result.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
