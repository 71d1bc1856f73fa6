package device

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
)

const (
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
	propsIface         = "org.freedesktop.DBus.Properties"
	bluezDeviceIface   = "org.bluez.Device1"

	interfacesAdded   = objectManagerIface + ".InterfacesAdded"
	interfacesRemoved = objectManagerIface + ".InterfacesRemoved"
	propsChanged      = propsIface + ".PropertiesChanged"

	sourceName = "dbus"
)

// Watcher forwards device arrival and removal notifications from the system
// bus. The events are observational only.
type Watcher struct {
	conn *dbus.Conn
}

// NewWatcher opens a private system bus connection, so Close never affects
// other users of the shared one.
func NewWatcher() (*Watcher, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	return &Watcher{conn: conn}, nil
}

// Run subscribes to object manager and property signals and posts one
// device signal per arrival or removal until ctx is done.
func (w *Watcher) Run(ctx context.Context, post func(core.Signal)) error {
	for _, rule := range []string{
		"type='signal',interface='" + objectManagerIface + "'",
		"type='signal',interface='" + propsIface + "',member='PropertiesChanged',arg0='" + bluezDeviceIface + "'",
	} {
		if call := w.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
			return fmt.Errorf("add match %q: %w", rule, call.Err)
		}
	}

	ch := make(chan *dbus.Signal, 16)
	w.conn.Signal(ch)
	defer w.conn.RemoveSignal(ch)

	logger.Info("Watching device notifications", "source", sourceName)
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-ch:
			if !ok {
				return nil
			}
			if ev, ok := EventFromSignal(sig); ok {
				post(core.Device(ev))
			}
		}
	}
}

func (w *Watcher) Close() error {
	return w.conn.Close()
}

// EventFromSignal maps a bus signal to a device event. Signals that are not
// an arrival or removal report false.
func EventFromSignal(sig *dbus.Signal) (core.DeviceEvent, bool) {
	if sig == nil {
		return core.DeviceEvent{}, false
	}
	switch sig.Name {
	case interfacesAdded, interfacesRemoved:
		// Body: [object_path, interfaces...]
		if len(sig.Body) < 1 {
			return core.DeviceEvent{}, false
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok {
			return core.DeviceEvent{}, false
		}
		kind := core.DeviceArrival
		if sig.Name == interfacesRemoved {
			kind = core.DeviceRemoval
		}
		return core.DeviceEvent{Kind: kind, Path: string(path), Source: sourceName}, true

	case propsChanged:
		// Body: [interface_name, changed_props, invalidated]
		if len(sig.Body) < 2 {
			return core.DeviceEvent{}, false
		}
		if iface, ok := sig.Body[0].(string); !ok || iface != bluezDeviceIface {
			return core.DeviceEvent{}, false
		}
		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return core.DeviceEvent{}, false
		}
		v, ok := changed["Connected"]
		if !ok {
			return core.DeviceEvent{}, false
		}
		connected, ok := v.Value().(bool)
		if !ok {
			return core.DeviceEvent{}, false
		}
		kind := core.DeviceRemoval
		if connected {
			kind = core.DeviceArrival
		}
		return core.DeviceEvent{Kind: kind, Path: string(sig.Path), Source: sourceName}, true
	}
	return core.DeviceEvent{}, false
}
