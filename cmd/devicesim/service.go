package main

import (
	"context"
	"fmt"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/config"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
	"github.com/kardianos/service"
)

// program implements service.Interface around run.
type program struct {
	cfg    *config.Config
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		if err := run(ctx, p.cfg, false); err != nil {
			logger.Error("Simulator stopped", "error", err)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	return nil
}

// runService runs under the service manager when called without an action,
// otherwise forwards install/uninstall/start/stop/restart to it.
func runService(cfg *config.Config, args []string) error {
	svcConfig := &service.Config{
		Name:        "devicesim",
		DisplayName: "devicesim hardware event simulator",
		Description: "Emulates device connect/disconnect events and credential delivery.",
		Arguments:   []string{"service"},
	}
	if cfg.Surface != config.SurfaceHeadless {
		svcConfig.Arguments = append(svcConfig.Arguments, "--surface", string(config.SurfaceHeadless))
	}
	svcConfig.Dependencies = []string{
		"Requires=network.target",
		"After=network-online.target syslog.target",
	}

	s, err := service.New(&program{cfg: cfg}, svcConfig)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	if len(args) == 0 {
		return s.Run()
	}
	if err := service.Control(s, args[0]); err != nil {
		return fmt.Errorf("%w (valid actions: %q)", err, service.ControlAction)
	}
	logger.Info("Service action done", "action", args[0], "platform", service.Platform())
	return nil
}
