package cmd

import (
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:     "state NAME",
	Aliases: []string{"inspect"},
	Short:   "Show the current state of a container",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := buildService()
		if err != nil {
			return err
		}
		info, err := svc.GetState(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printState(info)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
}
