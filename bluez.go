package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	busName         = "org.bluez"
	adapterIface    = "org.bluez.Adapter1"
	deviceIface     = "org.bluez.Device1"
	propsIface      = "org.freedesktop.DBus.Properties"
	propsSignal     = "org.freedesktop.DBus.Properties.PropertiesChanged"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// adapterObjectPath turns an adapter name like "hci0" into "/org/bluez/hci0".
func adapterObjectPath(name string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + name)
}

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(adapter dbus.ObjectPath, addr string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(strings.ToUpper(addr), ":", "_")
	return dbus.ObjectPath(string(adapter) + "/dev_" + escaped)
}

// macFromPath extracts a MAC address from a BlueZ device object path.
func macFromPath(adapter, path dbus.ObjectPath) string {
	s := string(path)
	prefix := string(adapter) + "/dev_"
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	rest := s[len(prefix):]
	// Child objects (e.g. /dev_XX/sep1) are not devices.
	if strings.Contains(rest, "/") {
		return ""
	}
	return strings.ReplaceAll(rest, "_", ":")
}

// bluez wraps a system D-Bus connection for BlueZ operations on one adapter.
type bluez struct {
	conn    *dbus.Conn
	adapter dbus.ObjectPath
}

func newBluez(adapter string) (*bluez, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	// Quick check that BlueZ is on the bus.
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	found := false
	for _, n := range names {
		if n == busName {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("org.bluez not found on system bus, is bluetooth.service running?")
	}
	return &bluez{conn: conn, adapter: adapterObjectPath(adapter)}, nil
}

func (b *bluez) close() {
	b.conn.Close()
}

// --- property helpers ---

func (b *bluez) getProp(ctx context.Context, path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	obj := b.conn.Object(busName, path)
	var v dbus.Variant
	err := obj.CallWithContext(ctx, propsIface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (b *bluez) getString(ctx context.Context, path dbus.ObjectPath, iface, prop string) (string, error) {
	v, err := b.getProp(ctx, path, iface, prop)
	if err != nil {
		return "", err
	}
	val, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("property %s is not string", prop)
	}
	return val, nil
}

// --- device ---

// deviceName returns the remote name of the device, falling back to its alias.
func (b *bluez) deviceName(ctx context.Context, path dbus.ObjectPath) (string, error) {
	name, err := b.getString(ctx, path, deviceIface, "Name")
	if err == nil && name != "" {
		return name, nil
	}
	alias, aliasErr := b.getString(ctx, path, deviceIface, "Alias")
	if aliasErr != nil {
		if err == nil {
			err = aliasErr
		}
		return "", fmt.Errorf("device name %s: %w", path, err)
	}
	return alias, nil
}

// BondedDevices lists paired devices under the adapter. Errors are logged
// and produce an empty set.
func (b *bluez) BondedDevices(ctx context.Context) []Device {
	var objs managedObjects
	obj := b.conn.Object(busName, "/")
	if err := obj.CallWithContext(ctx, objManagerIface+".GetManagedObjects", 0).Store(&objs); err != nil {
		errorf("enumerate bonded devices: %v", err)
		return []Device{}
	}
	return bondedFromManagedObjects(objs, b.adapter)
}

func bondedFromManagedObjects(objs managedObjects, adapter dbus.ObjectPath) []Device {
	devices := []Device{}
	for path, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		if a, ok := props["Adapter"].Value().(dbus.ObjectPath); ok && a != adapter {
			continue
		}
		if !variantBool(props["Paired"]) && !variantBool(props["Bonded"]) {
			continue
		}
		name, _ := props["Name"].Value().(string)
		if name == "" {
			name, _ = props["Alias"].Value().(string)
		}
		addr, _ := props["Address"].Value().(string)
		if addr == "" {
			addr = macFromPath(adapter, path)
		}
		devices = append(devices, Device{Name: name, Address: addr, Path: path})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	return devices
}

func variantBool(v dbus.Variant) bool {
	b, _ := v.Value().(bool)
	return b
}

// --- signal subscription ---

func (b *bluez) subscribePropertyChanges() (chan *dbus.Signal, error) {
	call := b.conn.BusObject().Call(
		"org.freedesktop.DBus.AddMatch", 0,
		"type='signal',sender='"+busName+"',interface='"+propsIface+"',member='PropertiesChanged',path_namespace='"+string(b.adapter)+"'",
	)
	if call.Err != nil {
		return nil, fmt.Errorf("subscribe to property changes: %w", call.Err)
	}
	ch := make(chan *dbus.Signal, 16)
	b.conn.Signal(ch)
	return ch, nil
}

// connectedChange decodes a PropertiesChanged signal carrying a Device1
// Connected flip.
func connectedChange(sig *dbus.Signal) (path dbus.ObjectPath, connected bool, ok bool) {
	if sig == nil || sig.Name != propsSignal {
		return "", false, false
	}
	// Body: [interface_name string, changed_props map[string]Variant, invalidated []string]
	if len(sig.Body) < 2 {
		return "", false, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != deviceIface {
		return "", false, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", false, false
	}
	connVar, ok := changed["Connected"]
	if !ok {
		return "", false, false
	}
	connected, ok = connVar.Value().(bool)
	if !ok {
		return "", false, false
	}
	return sig.Path, connected, true
}
