package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const nameLookupTimeout = 5 * time.Second

func socketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return filepath.Join(dir, "stereowaker.sock")
}

// deviceNamer resolves the name of a device object.
type deviceNamer interface {
	deviceName(ctx context.Context, path dbus.ObjectPath) (string, error)
}

type daemon struct {
	coord   *coordinator
	devices DeviceDirectory
	namer   deviceNamer
	adapter dbus.ObjectPath
}

func (d *daemon) handleRequest(ctx context.Context, req IPCRequest) IPCResponse {
	switch req.Command {
	case "status":
		return d.coord.snapshot()

	case "devices":
		resp := IPCResponse{Leader: d.coord.leader, Follower: d.coord.follower.String()}
		for _, dev := range d.devices.BondedDevices(ctx) {
			resp.Devices = append(resp.Devices, IPCDevice{
				Name:     dev.Name,
				Address:  dev.Address,
				Follower: d.coord.follower.match(dev.Name),
			})
		}
		return resp

	default:
		return IPCResponse{Error: fmt.Sprintf("unknown command: %q", req.Command)}
	}
}

func (d *daemon) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var req IPCRequest
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		resp := IPCResponse{Error: "invalid request: " + err.Error()}
		json.NewEncoder(conn).Encode(resp)
		return
	}

	resp := d.handleRequest(ctx, req)
	json.NewEncoder(conn).Encode(resp)
}

// eventFromSignal turns a Connected flip into a ConnectionEvent. A failed
// name lookup leaves Name empty.
func (d *daemon) eventFromSignal(ctx context.Context, sig *dbus.Signal) (ConnectionEvent, bool) {
	path, connected, ok := connectedChange(sig)
	if !ok {
		return ConnectionEvent{}, false
	}
	mac := macFromPath(d.adapter, path)
	if mac == "" {
		return ConnectionEvent{}, false
	}
	ev := ConnectionEvent{Kind: EventDisconnected, Address: mac}
	if connected {
		ev.Kind = EventConnected
	}

	ctx, cancel := context.WithTimeout(ctx, nameLookupTimeout)
	defer cancel()
	name, err := d.namer.deviceName(ctx, path)
	if err != nil {
		warnf("look up name of %s: %v", mac, err)
	}
	ev.Name = name
	return ev, true
}

func (d *daemon) watchSignals(ctx context.Context, sigCh chan *dbus.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			ev, ok := d.eventFromSignal(ctx, sig)
			if !ok {
				continue
			}
			debugf("device %s %s", ev.Address, ev.Kind)
			d.coord.OnConnectionEvent(ctx, ev)
		}
	}
}

func runDaemon() error {
	cfg, err := loadConfig(configPath())
	if err != nil {
		return err
	}
	setDebug(cfg.Debug)

	bz, err := newBluez(cfg.Adapter)
	if err != nil {
		return err
	}
	defer bz.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	m := newMetrics(reg)
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = serveMetrics(cfg.MetricsAddr, reg)
		defer metricsSrv.Close()
	}

	coord, err := newCoordinator(cfg, coordinatorDeps{
		Acquirer: newBluezAcquirer(bz, cfg.Profile, cfg.AcquireTimeout, m),
		Devices:  bz,
		Locator:  newMethodLocator(bz.conn, cfg.Operation),
		Notifier: newNotifier(cfg.DisableNotifications),
		Metrics:  m,
	})
	if err != nil {
		return err
	}

	sock := socketPath()
	os.Remove(sock) // remove stale socket
	ln, err := net.Listen("unix", sock)
	if err != nil {
		return fmt.Errorf("listen %s: %w", sock, err)
	}
	os.Chmod(sock, 0700)
	defer os.Remove(sock)
	defer ln.Close()

	d := &daemon{coord: coord, devices: bz, namer: bz, adapter: bz.adapter}

	// Signal watcher goroutine.
	dbusSignals, err := bz.subscribePropertyChanges()
	if err != nil {
		return err
	}
	go d.watchSignals(ctx, dbusSignals)

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		infof("shutting down")
		cancel()
		ln.Close()
	}()

	infof("leader %q, follower %q on %s", cfg.Leader, cfg.Follower, bz.adapter)
	infof("listening on %s", sock)
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed by shutdown goroutine.
			return nil
		}
		go d.handleConn(ctx, conn)
	}
}
