package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"stevedore/pkg/logger"
)

var upCmd = &cobra.Command{
	Use:   "up [SERVICE...]",
	Short: "Run the services declared in the config file",
	Long: `Run the containers declared under services in the config file. With no
arguments all declared services are run; with arguments only the named ones.
Services are processed in declaration order and a failure stops processing.`,
	RunE: runUp,
}

func init() {
	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	svc, cfg, err := buildService()
	if err != nil {
		return err
	}
	if len(cfg.Services) == 0 {
		return fmt.Errorf("no services declared in config")
	}

	selected := cfg.Services
	if len(args) > 0 {
		selected = selected[:0:0]
		for _, name := range args {
			entry, ok := cfg.Service(name)
			if !ok {
				return fmt.Errorf("service %s is not declared in config", name)
			}
			selected = append(selected, entry)
		}
	}

	for _, entry := range selected {
		opts, err := entry.RunOptions()
		if err != nil {
			return err
		}
		logger.Info("Bringing service up", "name", entry.Name, "image", entry.Image)
		result, err := svc.RunContainer(cmd.Context(), opts)
		if err != nil {
			return fmt.Errorf("service %s: %w", entry.Name, err)
		}
		for _, w := range result.Warnings {
			logger.Warn(w)
		}
		fmt.Printf("%s: %s\n", result.Name, result.Status)
	}
	return nil
}
