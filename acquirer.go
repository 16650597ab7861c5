package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// ProfileHandle is a grant to drive one audio profile through an adapter.
// Token identifies the request that produced it.
type ProfileHandle struct {
	Adapter dbus.ObjectPath
	Profile string
	Token   uint64
}

// ProfileAcquirer obtains a ProfileHandle asynchronously. deliver is called
// at most once, from another goroutine; on failure it is never called.
type ProfileAcquirer interface {
	Request(ctx context.Context, token uint64, deliver func(ProfileHandle))
}

var errProfileUnavailable = errors.New("audio profile not available")

// bluezAcquirer grants a handle once the adapter is powered and has an audio
// source endpoint registered.
type bluezAcquirer struct {
	adapter dbus.ObjectPath
	profile string
	timeout time.Duration
	metrics *metrics
	// getAll starts an asynchronous Adapter1 GetAll whose completion is sent on ch.
	getAll func(ctx context.Context, ch chan *dbus.Call) *dbus.Call
}

func newBluezAcquirer(bz *bluez, profile string, timeout time.Duration, m *metrics) *bluezAcquirer {
	return &bluezAcquirer{
		adapter: bz.adapter,
		profile: profile,
		timeout: timeout,
		metrics: m,
		getAll: func(ctx context.Context, ch chan *dbus.Call) *dbus.Call {
			obj := bz.conn.Object(busName, bz.adapter)
			return obj.GoWithContext(ctx, propsIface+".GetAll", 0, ch, adapterIface)
		},
	}
}

func (a *bluezAcquirer) Request(ctx context.Context, token uint64, deliver func(ProfileHandle)) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	call := a.getAll(ctx, make(chan *dbus.Call, 1))

	go func() {
		defer cancel()
		<-call.Done
		if call.Err != nil {
			errorf("acquire profile handle #%d: %v", token, call.Err)
			a.metrics.acquisition("error")
			return
		}
		var props map[string]dbus.Variant
		if err := call.Store(&props); err != nil {
			errorf("acquire profile handle #%d: %v", token, err)
			a.metrics.acquisition("error")
			return
		}
		h, err := profileHandleFromProps(props, a.adapter, a.profile, token)
		if err != nil {
			warnf("acquire profile handle #%d: %v", token, err)
			a.metrics.acquisition("unavailable")
			return
		}
		a.metrics.acquisition("granted")
		deliver(h)
	}()
}

func profileHandleFromProps(props map[string]dbus.Variant, adapter dbus.ObjectPath, profile string, token uint64) (ProfileHandle, error) {
	if !variantBool(props["Powered"]) {
		return ProfileHandle{}, fmt.Errorf("%w: adapter %s is powered off", errProfileUnavailable, adapter)
	}
	uuids, _ := props["UUIDs"].Value().([]string)
	if !slices.ContainsFunc(uuids, func(u string) bool { return strings.EqualFold(u, audioSourceUUID) }) {
		return ProfileHandle{}, fmt.Errorf("%w: no audio source registered on %s", errProfileUnavailable, adapter)
	}
	return ProfileHandle{Adapter: adapter, Profile: profile, Token: token}, nil
}
