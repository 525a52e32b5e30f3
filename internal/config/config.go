package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"stevedore/pkg/logger"
	"stevedore/pkg/runtime"
)

type Config struct {
	LogLevel   string          `mapstructure:"log_level"`
	DockerHost string          `mapstructure:"docker_host"`
	DataDir    string          `mapstructure:"data_dir"`
	Timeouts   TimeoutConfig   `mapstructure:"timeouts"`
	Services   []ServiceConfig `mapstructure:"services"`
}

// TimeoutConfig overrides per-operation timeouts. Zero values keep the
// built-in defaults.
type TimeoutConfig struct {
	Ping    time.Duration `mapstructure:"ping"`
	Pull    time.Duration `mapstructure:"pull"`
	Create  time.Duration `mapstructure:"create"`
	Start   time.Duration `mapstructure:"start"`
	Stop    time.Duration `mapstructure:"stop"`
	Restart time.Duration `mapstructure:"restart"`
	Remove  time.Duration `mapstructure:"remove"`
	Inspect time.Duration `mapstructure:"inspect"`
}

// ServiceConfig declares one container managed through the services list.
type ServiceConfig struct {
	Name          string            `mapstructure:"name"`
	Image         string            `mapstructure:"image"`
	Ports         []string          `mapstructure:"ports"`
	Env           map[string]string `mapstructure:"env"`
	Volumes       []string          `mapstructure:"volumes"`
	RestartPolicy string            `mapstructure:"restart_policy"`
	Args          []string          `mapstructure:"args"`
}

func Load() (*Config, error) {
	var cfg Config

	// Set defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("docker_host", "")

	defaultDataDir := getDefaultDataDir()
	viper.SetDefault("data_dir", defaultDataDir)

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %v", err)
	}

	// If data_dir is empty after loading config, use the default
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
		logger.Debug("Config had empty data_dir, using default", "data_dir", cfg.DataDir)
	}

	seen := make(map[string]bool, len(cfg.Services))
	for i, svc := range cfg.Services {
		if svc.Name == "" {
			return nil, fmt.Errorf("services[%d]: name is required", i)
		}
		if svc.Image == "" {
			return nil, fmt.Errorf("service %s: image is required", svc.Name)
		}
		if seen[svc.Name] {
			return nil, fmt.Errorf("service %s: duplicate name", svc.Name)
		}
		seen[svc.Name] = true
		if _, err := svc.RunOptions(); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// RunOptions translates the declarative service entry into runtime options.
func (s ServiceConfig) RunOptions() (runtime.RunContainerOptions, error) {
	opts := runtime.RunContainerOptions{
		Name:          s.Name,
		Image:         s.Image,
		Env:           s.Env,
		RestartPolicy: runtime.RestartPolicy(s.RestartPolicy),
		Args:          s.Args,
	}
	if !runtime.ValidRestartPolicy(opts.RestartPolicy) {
		return opts, fmt.Errorf("service %s: unknown restart policy %q", s.Name, s.RestartPolicy)
	}
	for _, p := range s.Ports {
		spec, err := parsePort(p)
		if err != nil {
			return opts, fmt.Errorf("service %s: %v", s.Name, err)
		}
		opts.Ports = append(opts.Ports, spec)
	}
	for _, v := range s.Volumes {
		spec, err := parseVolume(v)
		if err != nil {
			return opts, fmt.Errorf("service %s: %v", s.Name, err)
		}
		opts.Volumes = append(opts.Volumes, spec)
	}
	return opts, nil
}

// parsePort parses "host:container" with an optional "/tcp" or "/udp"
// suffix, e.g. "8080:80" or "5353:53/udp".
func parsePort(raw string) (runtime.PortSpec, error) {
	var spec runtime.PortSpec

	portPart := raw
	spec.Protocol = "tcp"
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		portPart = raw[:idx]
		proto := raw[idx+1:]
		if proto != "tcp" && proto != "udp" {
			return spec, fmt.Errorf("invalid port %q: protocol must be tcp or udp", raw)
		}
		spec.Protocol = proto
	}

	hostStr, containerStr, ok := strings.Cut(portPart, ":")
	if !ok {
		return spec, fmt.Errorf("invalid port %q: expected host:container", raw)
	}
	host, err := strconv.Atoi(hostStr)
	if err != nil || host < 1 || host > 65535 {
		return spec, fmt.Errorf("invalid port %q: bad host port", raw)
	}
	container, err := strconv.Atoi(containerStr)
	if err != nil || container < 1 || container > 65535 {
		return spec, fmt.Errorf("invalid port %q: bad container port", raw)
	}
	spec.Host = host
	spec.Container = container
	return spec, nil
}

// parseVolume parses "host:container" with an optional ":ro" suffix.
func parseVolume(raw string) (runtime.VolumeSpec, error) {
	var spec runtime.VolumeSpec

	parts := strings.Split(raw, ":")
	switch len(parts) {
	case 2:
	case 3:
		if parts[2] != "ro" {
			return spec, fmt.Errorf("invalid volume %q: only :ro is supported as a mode", raw)
		}
		spec.ReadOnly = true
	default:
		return spec, fmt.Errorf("invalid volume %q: expected host:container[:ro]", raw)
	}
	if parts[0] == "" || parts[1] == "" {
		return spec, fmt.Errorf("invalid volume %q: empty path", raw)
	}
	if !strings.HasPrefix(parts[1], "/") {
		return spec, fmt.Errorf("invalid volume %q: container path must be absolute", raw)
	}
	spec.HostPath = parts[0]
	spec.ContainerPath = parts[1]
	return spec, nil
}

// Service looks up a declared service by name.
func (c *Config) Service(name string) (ServiceConfig, bool) {
	for _, svc := range c.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return ServiceConfig{}, false
}

// getDefaultDataDir returns a platform-appropriate default data directory
func getDefaultDataDir() string {
	uid := os.Getuid()

	// Check if we're running in a rootless environment
	if uid != 0 {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, ".local/share/stevedore")
		}
		logger.Debug("Failed to get user home directory, falling back to ./data")
	}
	return "./data"
}
