package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stevedore/internal/config"
	"stevedore/pkg/logger"
)

var (
	runPorts   []string
	runEnv     []string
	runVolumes []string
	runRestart string
)

var runCmd = &cobra.Command{
	Use:   "run NAME IMAGE [-- ARGS...]",
	Short: "Create and start a container",
	Long: `Create a container from IMAGE under NAME and start it. If the image is
missing locally it is pulled automatically. The container gets a persistent
data directory derived from NAME, so re-running under the same name
reattaches the same data.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringArrayVarP(&runPorts, "port", "p", nil, "publish a port as host:container[/proto]")
	runCmd.Flags().StringArrayVarP(&runEnv, "env", "e", nil, "set an environment variable as KEY=VALUE")
	runCmd.Flags().StringArrayVarP(&runVolumes, "volume", "v", nil, "bind a host directory as host:container[:ro]")
	runCmd.Flags().StringVar(&runRestart, "restart", "no", "restart policy: no, always, on-failure, unless-stopped")
}

func runRun(cmd *cobra.Command, args []string) error {
	svc, _, err := buildService()
	if err != nil {
		return err
	}

	env := make(map[string]string, len(runEnv))
	for _, kv := range runEnv {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid env entry %q: expected KEY=VALUE", kv)
		}
		env[key] = value
	}

	entry := config.ServiceConfig{
		Name:          args[0],
		Image:         args[1],
		Ports:         runPorts,
		Env:           env,
		Volumes:       runVolumes,
		RestartPolicy: runRestart,
		Args:          args[2:],
	}
	opts, err := entry.RunOptions()
	if err != nil {
		return err
	}

	result, err := svc.RunContainer(cmd.Context(), opts)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		logger.Warn(w)
	}
	printState(&result.ContainerStateInfo)
	return nil
}
