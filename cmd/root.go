package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stevedore/internal/config"
	"stevedore/internal/docker"
	"stevedore/internal/lifecycle"
	"stevedore/pkg/logger"
	"stevedore/pkg/runtime"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "stevedore",
	Short: "Stevedore - Container Lifecycle Manager",
	Long: `Stevedore runs and manages containers on a Docker-compatible runtime:
it creates them with persistent per-container data directories, pulls missing
images on demand, and reports their state in a uniform shape.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./stevedore.yaml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config file in standard locations
		viper.SetConfigName("stevedore")
		viper.SetConfigType("yaml")

		// Current directory (highest priority)
		viper.AddConfigPath(".")

		// User config directory
		if userConfigDir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(userConfigDir + "/stevedore")
		}

		// User home directory
		if homeDir, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(homeDir + "/.stevedore")
		}

		// System-wide config directories
		viper.AddConfigPath("/etc/stevedore")
	}

	viper.SetEnvPrefix("STEVEDORE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger.Debug("Using config file", "file", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		os.Exit(1)
	}
	// No config file is fine: every command works with defaults except up.
}

// buildService wires config, runtime client and lifecycle service together.
// Every command goes through here.
func buildService() (*lifecycle.Service, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger.GetLogger().SetLogLevel(cfg.LogLevel)
	logger.GetLogger().ConfigureFromEnv()

	opts := []docker.Option{
		docker.WithDataDir(cfg.DataDir),
		docker.WithTimeouts(mergeTimeouts(cfg.Timeouts)),
	}
	if cfg.DockerHost != "" {
		opts = append(opts, docker.WithHost(cfg.DockerHost))
	}

	client, err := docker.NewClient(opts...)
	if err != nil {
		return nil, nil, err
	}
	return lifecycle.NewService(client), cfg, nil
}

// mergeTimeouts overlays configured timeouts on the defaults, keeping the
// default wherever the config left a zero.
func mergeTimeouts(t config.TimeoutConfig) docker.Timeouts {
	merged := docker.DefaultTimeouts()
	if t.Ping > 0 {
		merged.Ping = t.Ping
	}
	if t.Pull > 0 {
		merged.Pull = t.Pull
	}
	if t.Create > 0 {
		merged.Create = t.Create
	}
	if t.Start > 0 {
		merged.Start = t.Start
	}
	if t.Stop > 0 {
		merged.Stop = t.Stop
	}
	if t.Restart > 0 {
		merged.Restart = t.Restart
	}
	if t.Remove > 0 {
		merged.Remove = t.Remove
	}
	if t.Inspect > 0 {
		merged.Inspect = t.Inspect
	}
	return merged
}

func printState(info *runtime.ContainerStateInfo) {
	fmt.Printf("Name:    %s\n", info.Name)
	if info.ID != "" {
		fmt.Printf("ID:      %s\n", info.ID)
	}
	fmt.Printf("Status:  %s\n", info.Status)
	if info.StartedAt != nil {
		fmt.Printf("Started: %s\n", info.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if info.FinishedAt != nil {
		fmt.Printf("Exited:  %s\n", info.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	if info.ExitCode != nil && info.Status == runtime.StatusExited {
		fmt.Printf("Code:    %d\n", *info.ExitCode)
	}
	for _, p := range info.Ports {
		if p.Host != nil {
			fmt.Printf("Port:    %d -> %d/%s\n", *p.Host, p.Container, p.Protocol)
		} else {
			fmt.Printf("Port:    (unbound) %d/%s\n", p.Container, p.Protocol)
		}
	}
}
