package main

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// EventKind is the kind of a connection change reported for a device.
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// ConnectionEvent is a single connection change of a remote device.
type ConnectionEvent struct {
	Kind    EventKind
	Name    string
	Address string
}

// Action is what should happen to the follower.
type Action int

const (
	ActionConnect Action = iota + 1
	ActionDisconnect
)

func (a Action) String() string {
	switch a {
	case ActionConnect:
		return "connect"
	case ActionDisconnect:
		return "disconnect"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Intent is a pending action tagged with the request that produced it.
type Intent struct {
	Token  uint64
	Action Action
}

// Device is a bonded BlueZ device.
type Device struct {
	Name    string
	Address string
	Path    dbus.ObjectPath
}

// IPCRequest is sent from the CLI client to the daemon.
type IPCRequest struct {
	Command string `json:"command"` // "status" | "devices"
}

// IPCDevice is one entry of the "devices" response.
type IPCDevice struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Follower bool   `json:"follower,omitempty"`
}

// IPCResponse is sent from the daemon back to the CLI client.
type IPCResponse struct {
	Leader      string      `json:"leader,omitempty"`
	Follower    string      `json:"follower,omitempty"`
	Pending     string      `json:"pending,omitempty"`      // "connect", "disconnect"
	LastEvent   string      `json:"last_event,omitempty"`   // e.g. "connected My Car"
	LastOutcome string      `json:"last_outcome,omitempty"` // e.g. "invoked connect on BT Audio"
	LastAt      string      `json:"last_at,omitempty"`      // RFC 3339
	Devices     []IPCDevice `json:"devices,omitempty"`
	Error       string      `json:"error,omitempty"`
}
