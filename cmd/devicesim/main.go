package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/api"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/config"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/control"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/factory"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/listener"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/mediator"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/provider"
	"github.com/spf13/pflag"
)

const usage = "usage: devicesim [run|service [install|uninstall|start|stop|restart]|status|toggle] [flags]"

func main() {
	cmd, args := "run", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	// Load configuration from environment, then let flags override it
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	fs := pflag.NewFlagSet("devicesim", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logOpts := logger.Options{Debug: cfg.Debug, Format: cfg.LogFormat}
	if path := cfg.LogPath(cmd == "run"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOpts.Output = f
		fmt.Fprintf(os.Stderr, "Logging to %s\n", path)
	}
	logger.Configure(logOpts)

	switch cmd {
	case "run":
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		err = run(ctx, cfg, true)
	case "service":
		err = runService(cfg, fs.Args())
	case "status":
		err = runControl(cfg, control.CommandStatus)
	case "toggle":
		err = runControl(cfg, control.CommandToggle)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run starts the simulator and blocks until ctx is done or the listener
// failure policy ends the process.
func run(ctx context.Context, cfg *config.Config, interactive bool) error {
	logger.Info("Starting devicesim...",
		"port", cfg.ListenPort,
		"validator", cfg.Validator,
		"surface", cfg.Surface,
		"control", cfg.ControlTransport,
		"failure_policy", cfg.FailurePolicy)

	validator, closeValidator, err := factory.NewValidatorFactory(cfg).Create(ctx)
	if err != nil {
		return fmt.Errorf("create identity validator: %w", err)
	}
	defer closeValidator()

	surfaces := factory.NewSurfaceFactory(cfg)
	surface, err := surfaces.Toggle(interactive)
	if err != nil {
		return err
	}

	owner := provider.New()
	m := mediator.New(mediator.Config{
		Port: cfg.ListenPort,
		Handshake: listener.Options{
			BufferSize:  cfg.RecvBufferSize,
			MaxTokenLen: cfg.MaxTokenLength,
			Validator:   validator,
		},
		DatagramPort: cfg.DatagramPort,
	})

	// Start health server
	healthServer := api.NewHealthServer(":"+cfg.HealthServerPort, m)
	healthServer.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		healthServer.Stop(shutdownCtx)
	}()

	owner.Subscribe(healthServer.ObserveChange)

	if err := m.Initialize(ctx, owner, surface); err != nil {
		var bindErr *listener.BindError
		if errors.As(err, &bindErr) {
			logger.Fatal("Failed to start listener", "port", bindErr.Port, "error", bindErr.Err)
		}
		return err
	}
	defer m.Close()

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	deviceSource, err := surfaces.DeviceSource()
	if err != nil {
		logger.Warn("Device notifications disabled", "error", err)
	} else if deviceSource != nil {
		go func() {
			if err := deviceSource(workerCtx, m.Post); err != nil {
				logger.Warn("Device watcher stopped", "error", err)
			}
		}()
	}

	controlServer, err := surfaces.ControlServer(m)
	if err != nil {
		logger.Warn("Control server disabled", "error", err)
	} else if controlServer != nil {
		go func() {
			if err := controlServer(workerCtx); err != nil {
				logger.Warn("Control server stopped", "error", err)
			}
		}()
	}

	healthServer.SetReady(true)
	logger.Info("Simulator is ready", "addr", m.ListenAddr())

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return nil
		case err := <-m.Failures():
			if err := applyFailurePolicy(cfg.FailurePolicy, m, err); err != nil {
				healthServer.SetReady(false)
				return err
			}
		}
	}
}

func applyFailurePolicy(policy config.FailurePolicy, m *mediator.Mediator, failure error) error {
	switch policy {
	case config.FailureRestart:
		for attempt := 1; attempt <= 5; attempt++ {
			time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
			if err := m.RestartListener(); err != nil {
				logger.Warn("Listener restart failed", "attempt", attempt, "error", err)
				continue
			}
			return nil
		}
		return fmt.Errorf("listener did not recover: %w", failure)
	case config.FailureIgnore:
		logger.Warn("Listener stopped, continuing without it", "error", failure)
		return nil
	default:
		logger.Fatal("Listener failed", "error", failure)
		return failure
	}
}

func runControl(cfg *config.Config, command string) error {
	resp, err := control.Call(cfg.ControlSocket, control.Request{Command: command})
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}
	return json.NewEncoder(os.Stdout).Encode(resp)
}
