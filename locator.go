package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// ErrOperationUnavailable means the running BlueZ does not export the
// method needed for an action.
var ErrOperationUnavailable = errors.New("operation not available")

// Operation connects or disconnects dev.
type Operation func(ctx context.Context, dev Device) error

// OperationLocator finds the operation implementing action for dev.
type OperationLocator interface {
	Locate(ctx context.Context, h ProfileHandle, action Action, dev Device) (Operation, error)
}

type introspectFunc func(path dbus.ObjectPath) (*introspect.Node, error)

// methodLocator looks methods up on the device object by introspection.
// withProfile selects ConnectProfile/DisconnectProfile over Connect/Disconnect.
type methodLocator struct {
	conn        *dbus.Conn
	introspect  introspectFunc
	withProfile bool
}

func newMethodLocator(conn *dbus.Conn, operation string) *methodLocator {
	return &methodLocator{
		conn: conn,
		introspect: func(path dbus.ObjectPath) (*introspect.Node, error) {
			return introspect.Call(conn.Object(busName, path))
		},
		withProfile: operation == operationProfile,
	}
}

func (l *methodLocator) methodName(action Action) (string, error) {
	var name string
	switch action {
	case ActionConnect:
		name = "Connect"
	case ActionDisconnect:
		name = "Disconnect"
	default:
		return "", fmt.Errorf("unknown action %v", action)
	}
	if l.withProfile {
		name += "Profile"
	}
	return name, nil
}

func (l *methodLocator) Locate(_ context.Context, h ProfileHandle, action Action, dev Device) (Operation, error) {
	method, err := l.methodName(action)
	if err != nil {
		return nil, err
	}
	node, err := l.introspect(dev.Path)
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", dev.Path, err)
	}
	if !hasMethod(node, deviceIface, method) {
		return nil, fmt.Errorf("%w: %s.%s on %s", ErrOperationUnavailable, deviceIface, method, dev.Path)
	}

	var args []any
	if l.withProfile {
		args = append(args, h.Profile)
	}
	return func(ctx context.Context, dev Device) error {
		obj := l.conn.Object(busName, dev.Path)
		if err := obj.CallWithContext(ctx, deviceIface+"."+method, 0, args...).Err; err != nil {
			return fmt.Errorf("%s %s: %w", method, dev.Address, err)
		}
		return nil
	}, nil
}

func hasMethod(node *introspect.Node, iface, method string) bool {
	if node == nil {
		return false
	}
	for _, i := range node.Interfaces {
		if i.Name != iface {
			continue
		}
		for _, m := range i.Methods {
			if m.Name == method {
				return true
			}
		}
	}
	return false
}
