package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNamer map[dbus.ObjectPath]string

func (n fakeNamer) deviceName(_ context.Context, path dbus.ObjectPath) (string, error) {
	name, ok := n[path]
	if !ok {
		return "", errors.New("org.freedesktop.DBus.Error.UnknownObject")
	}
	return name, nil
}

func newTestDaemon(t *testing.T) (*daemon, *harness) {
	t.Helper()
	h := newHarness(t, defaultConfig())
	d := &daemon{
		coord:   h.coord,
		devices: fakeDirectory{devices: []Device{myCar, btAudio}},
		namer:   fakeNamer{myCar.Path: myCar.Name, btAudio.Path: btAudio.Name},
		adapter: hci0,
	}
	return d, h
}

func connectedSignal(path dbus.ObjectPath, connected bool) *dbus.Signal {
	return propsChanged(path, deviceIface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(connected)})
}

func TestEventFromSignal(t *testing.T) {
	d, _ := newTestDaemon(t)

	ev, ok := d.eventFromSignal(context.Background(), connectedSignal(myCar.Path, true))
	require.True(t, ok)
	assert.Equal(t, ConnectionEvent{Kind: EventConnected, Name: "My Car", Address: "AA:BB:CC:DD:EE:FF"}, ev)

	ev, ok = d.eventFromSignal(context.Background(), connectedSignal(myCar.Path, false))
	require.True(t, ok)
	assert.Equal(t, EventDisconnected, ev.Kind)

	// Unknown device: identity is the address only.
	ev, ok = d.eventFromSignal(context.Background(), connectedSignal("/org/bluez/hci0/dev_99_99_99_99_99_99", true))
	require.True(t, ok)
	assert.Empty(t, ev.Name)
	assert.Equal(t, "99:99:99:99:99:99", ev.Address)

	_, ok = d.eventFromSignal(context.Background(), connectedSignal("/org/bluez/hci1/dev_99_99_99_99_99_99", true))
	assert.False(t, ok, "other adapter")
}

func TestWatchSignalsFeedsCoordinator(t *testing.T) {
	d, h := newTestDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan *dbus.Signal, 4)
	done := make(chan struct{})
	go func() {
		d.watchSignals(ctx, sigCh)
		close(done)
	}()

	sigCh <- connectedSignal(btAudio.Path, true) // follower itself: ignored
	sigCh <- connectedSignal("/org/bluez/hci0/dev_99_99_99_99_99_99", true)
	sigCh <- connectedSignal(myCar.Path, true)
	close(sigCh)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watchSignals did not return")
	}

	require.Len(t, h.acquirer.requests, 1)
	h.acquirer.deliver(0)
	require.Len(t, h.locator.invocations, 1)
	assert.Equal(t, ActionConnect, h.locator.invocations[0].action)
}

func TestHandleRequest(t *testing.T) {
	d, _ := newTestDaemon(t)

	resp := d.handleRequest(context.Background(), IPCRequest{Command: "devices"})
	assert.Empty(t, resp.Error)
	assert.Equal(t, []IPCDevice{
		{Name: "My Car", Address: "AA:BB:CC:DD:EE:FF"},
		{Name: "BT Audio", Address: "11:22:33:44:55:66", Follower: true},
	}, resp.Devices)

	resp = d.handleRequest(context.Background(), IPCRequest{Command: "status"})
	assert.Equal(t, "My Car", resp.Leader)
	assert.Equal(t, "BT Audio", resp.Follower)
	assert.Empty(t, resp.Pending)

	resp = d.handleRequest(context.Background(), IPCRequest{Command: "toggle"})
	assert.Contains(t, resp.Error, "unknown command")
}

func TestHandleConn(t *testing.T) {
	d, h := newTestDaemon(t)
	h.coord.OnConnectionEvent(context.Background(), ConnectionEvent{Kind: EventDisconnected, Name: "My Car"})

	client, server := net.Pipe()
	go d.handleConn(context.Background(), server)
	defer client.Close()

	require.NoError(t, json.NewEncoder(client).Encode(IPCRequest{Command: "status"}))
	var resp IPCResponse
	require.NoError(t, json.NewDecoder(client).Decode(&resp))
	assert.Equal(t, "disconnect", resp.Pending)
	assert.Equal(t, "disconnected My Car", resp.LastEvent)
}
