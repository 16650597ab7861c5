package main

import (
	"github.com/godbus/dbus/v5"
)

const (
	notifyBusName = "org.freedesktop.Notifications"
	notifyPath    = "/org/freedesktop/Notifications"
	notifyTimeout = int32(5000) // ms
)

// Notifier shows a short notice to the user. It must not block.
type Notifier interface {
	Notify(summary, body string)
}

type logNotifier struct{}

func (logNotifier) Notify(summary, body string) {
	infof("%s: %s", summary, body)
}

// desktopNotifier posts freedesktop notifications on the session bus.
type desktopNotifier struct {
	conn *dbus.Conn
}

func newNotifier(disabled bool) Notifier {
	if disabled {
		return logNotifier{}
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		warnf("session bus unavailable, notices go to the log: %v", err)
		return logNotifier{}
	}
	return &desktopNotifier{conn: conn}
}

func (n *desktopNotifier) Notify(summary, body string) {
	logNotifier{}.Notify(summary, body)
	obj := n.conn.Object(notifyBusName, notifyPath)
	call := obj.Go(notifyBusName+".Notify", dbus.FlagNoReplyExpected, nil,
		"stereowaker", uint32(0), "bluetooth", summary, body,
		[]string{}, map[string]dbus.Variant{}, notifyTimeout)
	if call.Err != nil {
		warnf("desktop notification: %v", call.Err)
	}
}
