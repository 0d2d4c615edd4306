// Package config provides worker configuration using Viper
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const Usage = "Usage: pulse-worker [flags] <port> <coordinator_url> <public_url>"

// ErrUsage is returned when the command line does not describe a runnable worker
var ErrUsage = errors.New("invalid usage")

type WorkerConfig struct {
	Port           int           `mapstructure:"port"`
	Hostname       string        `mapstructure:"hostname"`
	CoordinatorURL string        `mapstructure:"coordinator_url"`
	PublicURL      string        `mapstructure:"public_url"`
	PulseInterval  time.Duration `mapstructure:"pulse_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	GRPCPort       int           `mapstructure:"grpc_port"`
}

// Config holds every value the worker agent reads at startup
type Config struct {
	LogLevel string       `mapstructure:"log_level"`
	Worker   WorkerConfig `mapstructure:"worker"`
}

func setWorkerDefaults(v *viper.Viper) {
	v.SetDefault("worker.port", 4000)
	v.SetDefault("worker.hostname", "")
	v.SetDefault("worker.coordinator_url", "")
	v.SetDefault("worker.public_url", "")
	v.SetDefault("worker.pulse_interval", 2*time.Second)
	v.SetDefault("worker.request_timeout", 5*time.Second)
	v.SetDefault("worker.grpc_port", 0)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	setWorkerDefaults(v)
}

// NewViper returns a Viper instance with the worker defaults applied. Environment
// variables are deliberately not bound.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// BindFlags binds pflags to viper keys. bindFlags is a map of pflag names to viper keys.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, bindFlags map[string]string) error {
	for flagName, viperKey := range bindFlags {
		flag := fs.Lookup(flagName)
		if flag == nil {
			return fmt.Errorf("unknown flag %q", flagName)
		}
		if err := v.BindPFlag(viperKey, flag); err != nil {
			return fmt.Errorf("failed to bind flag %q: %w", flagName, err)
		}
	}
	return nil
}

// Load resolves the configuration. Precedence, lowest first: defaults, config file,
// flags, positional arguments, override string.
func Load(v *viper.Viper, configPath string, overrideStr string, args []string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		slog.Info("Loaded config file", "path", v.ConfigFileUsed())
	}

	if err := applyPositional(v, args); err != nil {
		return nil, err
	}

	if overrideStr != "" {
		pairs := strings.Split(overrideStr, ",")
		for _, pair := range pairs {
			parts := strings.SplitN(pair, ":", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("invalid override %q, expected key:value", pair)
			}
			v.Set(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	cfg.Worker.CoordinatorURL = strings.TrimRight(cfg.Worker.CoordinatorURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPositional maps <port> <coordinator_url> <public_url> onto viper keys
func applyPositional(v *viper.Viper, args []string) error {
	if len(args) > 3 {
		return fmt.Errorf("%w: too many arguments", ErrUsage)
	}
	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: port %q is not a number", ErrUsage, args[0])
		}
		v.Set("worker.port", port)
	}
	if len(args) > 1 {
		v.Set("worker.coordinator_url", args[1])
	}
	if len(args) > 2 {
		v.Set("worker.public_url", args[2])
	}
	return nil
}

func (c *Config) validate() error {
	if c.Worker.CoordinatorURL == "" || c.Worker.PublicURL == "" {
		return fmt.Errorf("%w: coordinator_url and public_url are required", ErrUsage)
	}
	if c.Worker.Port < 0 || c.Worker.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrUsage, c.Worker.Port)
	}
	if c.Worker.PulseInterval <= 0 {
		return fmt.Errorf("pulse_interval must be positive, got %s", c.Worker.PulseInterval)
	}
	if c.Worker.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.Worker.RequestTimeout)
	}
	return nil
}
