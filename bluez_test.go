package main

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hci0 = dbus.ObjectPath("/org/bluez/hci0")

func TestDeviceObjectPath(t *testing.T) {
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"), deviceObjectPath(hci0, "AA:BB:CC:DD:EE:FF"))
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci1/dev_AA_BB_CC_DD_EE_0F"), deviceObjectPath(adapterObjectPath("hci1"), "aa:bb:cc:dd:ee:0f"))
}

func TestMacFromPath(t *testing.T) {
	tests := []struct {
		path dbus.ObjectPath
		want string
	}{
		{"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF", "AA:BB:CC:DD:EE:FF"},
		{"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/sep1", ""},
		{"/org/bluez/hci1/dev_AA_BB_CC_DD_EE_FF", ""},
		{"/org/bluez/hci0", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, macFromPath(hci0, tt.path), string(tt.path))
	}
}

func deviceProps(name, addr string, paired bool, adapter dbus.ObjectPath) map[string]map[string]dbus.Variant {
	return map[string]map[string]dbus.Variant{
		deviceIface: {
			"Name":    dbus.MakeVariant(name),
			"Address": dbus.MakeVariant(addr),
			"Paired":  dbus.MakeVariant(paired),
			"Adapter": dbus.MakeVariant(adapter),
		},
	}
}

func TestBondedFromManagedObjects(t *testing.T) {
	objs := managedObjects{
		hci0: {adapterIface: {"Powered": dbus.MakeVariant(true)}},
		"/org/bluez/hci0/dev_22_22_22_22_22_22": deviceProps("My Car", "22:22:22:22:22:22", true, hci0),
		"/org/bluez/hci0/dev_11_11_11_11_11_11": deviceProps("BT Audio", "11:11:11:11:11:11", true, hci0),
		"/org/bluez/hci0/dev_33_33_33_33_33_33": deviceProps("Stranger", "33:33:33:33:33:33", false, hci0),
		"/org/bluez/hci1/dev_44_44_44_44_44_44": deviceProps("Other Adapter", "44:44:44:44:44:44", true, "/org/bluez/hci1"),
		"/org/bluez/hci0/dev_55_55_55_55_55_55": {
			deviceIface: {
				"Alias":   dbus.MakeVariant("Unnamed"),
				"Bonded":  dbus.MakeVariant(true),
				"Adapter": dbus.MakeVariant(hci0),
			},
		},
	}

	got := bondedFromManagedObjects(objs, hci0)

	require.Len(t, got, 3)
	assert.Equal(t, Device{Name: "BT Audio", Address: "11:11:11:11:11:11", Path: "/org/bluez/hci0/dev_11_11_11_11_11_11"}, got[0])
	assert.Equal(t, "My Car", got[1].Name)
	assert.Equal(t, Device{Name: "Unnamed", Address: "55:55:55:55:55:55", Path: "/org/bluez/hci0/dev_55_55_55_55_55_55"}, got[2])
}

func TestBondedFromManagedObjectsEmpty(t *testing.T) {
	got := bondedFromManagedObjects(nil, hci0)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func propsChanged(path dbus.ObjectPath, iface string, changed map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Path: path,
		Name: propsSignal,
		Body: []interface{}{iface, changed, []string{}},
	}
}

func TestConnectedChange(t *testing.T) {
	path := dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")

	p, connected, ok := connectedChange(propsChanged(path, deviceIface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}))
	require.True(t, ok)
	assert.Equal(t, path, p)
	assert.True(t, connected)

	_, connected, ok = connectedChange(propsChanged(path, deviceIface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(false)}))
	require.True(t, ok)
	assert.False(t, connected)

	_, _, ok = connectedChange(propsChanged(path, deviceIface, map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-40))}))
	assert.False(t, ok)

	_, _, ok = connectedChange(propsChanged(path, "org.bluez.MediaTransport1", map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}))
	assert.False(t, ok)

	_, _, ok = connectedChange(&dbus.Signal{Name: "org.freedesktop.DBus.ObjectManager.InterfacesAdded"})
	assert.False(t, ok)

	_, _, ok = connectedChange(nil)
	assert.False(t, ok)
}
