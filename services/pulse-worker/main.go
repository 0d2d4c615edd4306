package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"go-pulse/pkg/config"
	helpers "go-pulse/pkg/shared"
	"go-pulse/services/pulse-worker/internal/agent"
	"go-pulse/services/pulse-worker/internal/grpcHealth"
	"go-pulse/services/pulse-worker/internal/server"
)

var listen = net.Listen

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

// run starts the worker and blocks until ctx is cancelled, returning the process exit code.
// Configuration errors return before anything is bound.
func run(ctx context.Context, args []string, stdout io.Writer) int {
	logger := helpers.NewLoggerTo(stdout, "pulse-worker", "info")
	slog.SetDefault(logger)

	fs := pflag.NewFlagSet("pulse-worker", pflag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.Usage = func() {
		fmt.Fprintln(stdout, config.Usage)
		fs.PrintDefaults()
	}

	fs.String("config", "", "Path to an optional config file (toml, yaml or json)")
	fs.String("log_level", "info", "Log level (debug|info|warn|error)")
	fs.String("hostname", "", "Hostname to listen on")
	fs.Duration("pulse_interval", 2*time.Second, "Interval between pulses to the coordinator")
	fs.Duration("request_timeout", 5*time.Second, "Timeout for each call to the coordinator")
	fs.Int("grpc_port", 0, "Port for the gRPC health service (0 disables it)")
	fs.String("override", "", "Override simple config values (string, int, bool) as comma-separated key:value pairs (e.g., worker.pulse_interval:1s,log_level:debug)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}

	v := config.NewViper()
	err := config.BindFlags(v, fs, map[string]string{
		"log_level":       "log_level",
		"hostname":        "worker.hostname",
		"pulse_interval":  "worker.pulse_interval",
		"request_timeout": "worker.request_timeout",
		"grpc_port":       "worker.grpc_port",
	})
	if err != nil {
		slog.Error("Failed to bind flags", "error", err)
		return 1
	}

	cfg, err := config.Load(v, fs.Lookup("config").Value.String(), fs.Lookup("override").Value.String(), fs.Args())
	if err != nil {
		if errors.Is(err, config.ErrUsage) {
			fmt.Fprintln(stdout, config.Usage)
		}
		slog.Error("Invalid configuration", "error", err)
		return 1
	}

	// Update the logger to use the configured log level
	logger = helpers.NewLoggerTo(stdout, "pulse-worker", cfg.LogLevel)
	slog.SetDefault(logger)

	a := agent.New(cfg.Worker)
	slog.Info("Starting worker", "uuid", a.State().Id.String(), "port", cfg.Worker.Port, "coordinator", cfg.Worker.CoordinatorURL)

	if cfg.Worker.GRPCPort != 0 {
		grpcLn, err := listen("tcp", fmt.Sprintf("%s:%d", cfg.Worker.Hostname, cfg.Worker.GRPCPort))
		if err != nil {
			slog.Error("Failed to listen for gRPC", "error", err, "port", cfg.Worker.GRPCPort)
			return 1
		}
		mirror := grpcHealth.NewMirror(a.State())
		go func() {
			if err := mirror.Serve(ctx, grpcLn); err != nil {
				slog.Error("gRPC health server error", "error", err)
			}
		}()
	}

	ln, err := listen("tcp", fmt.Sprintf("%s:%d", cfg.Worker.Hostname, cfg.Worker.Port))
	if err != nil {
		slog.Error("Failed to listen", "error", err, "port", cfg.Worker.Port)
		return 1
	}

	if err := a.Run(ctx, ln, server.NewRouter(a.State())); err != nil {
		slog.Error("Worker stopped with error", "error", err)
		return 1
	}

	slog.Info("Worker exited gracefully")
	return 0
}
