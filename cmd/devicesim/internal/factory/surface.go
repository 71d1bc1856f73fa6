package factory

import (
	"context"
	"fmt"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/config"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/control"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/device"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/surface/headless"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/surface/terminal"
)

// SurfaceFactory creates the local control surfaces: the toggle window, the
// device notification source and the control IPC server.
type SurfaceFactory struct {
	cfg *config.Config
}

func NewSurfaceFactory(cfg *config.Config) *SurfaceFactory {
	return &SurfaceFactory{cfg: cfg}
}

// Toggle returns the toggle surface. Service mode forces headless since
// there is no terminal to draw on.
func (f *SurfaceFactory) Toggle(interactive bool) (core.Surface, error) {
	mode := f.cfg.Surface
	if !interactive && mode == config.SurfaceTerminal {
		logger.Warn("No terminal available, using headless surface")
		mode = config.SurfaceHeadless
	}
	switch mode {
	case config.SurfaceTerminal:
		return terminal.New(), nil
	case config.SurfaceHeadless:
		return headless.New(), nil
	default:
		return nil, fmt.Errorf("unknown surface: %s", mode)
	}
}

// DeviceSource returns a runner that forwards device notifications, or nil
// when disabled.
func (f *SurfaceFactory) DeviceSource() (func(ctx context.Context, post func(core.Signal)) error, error) {
	switch f.cfg.DeviceEvents {
	case config.DeviceEventsNone:
		return nil, nil
	case config.DeviceEventsDBus:
		w, err := device.NewWatcher()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, post func(core.Signal)) error {
			defer w.Close()
			return w.Run(ctx, post)
		}, nil
	default:
		return nil, fmt.Errorf("unknown device events source: %s", f.cfg.DeviceEvents)
	}
}

// ControlServer returns a runner for the control IPC, or nil when disabled.
func (f *SurfaceFactory) ControlServer(target control.Target) (func(ctx context.Context) error, error) {
	handler := &control.Handler{Target: target}
	switch f.cfg.ControlTransport {
	case config.ControlNone:
		return nil, nil
	case config.ControlUnix:
		srv := control.NewUnixServer(f.cfg.ControlSocket, handler)
		if err := srv.Listen(); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			defer srv.Close()
			return srv.Serve(ctx)
		}, nil
	case config.ControlZMQ:
		return control.NewZMQServer(f.cfg.ControlZMQEndpoint, handler).Serve, nil
	default:
		return nil, fmt.Errorf("unknown control transport: %s", f.cfg.ControlTransport)
	}
}
