package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DeviceDirectory enumerates bonded devices. It never fails: errors yield
// an empty set.
type DeviceDirectory interface {
	BondedDevices(ctx context.Context) []Device
}

// intentMailbox holds the latest unconsumed Intent. A put replaces whatever
// is waiting.
type intentMailbox struct {
	ch       chan Intent
	mu       sync.Mutex
	consumed uint64 // token of the last intent taken
}

func newIntentMailbox() *intentMailbox {
	return &intentMailbox{ch: make(chan Intent, 1)}
}

func (m *intentMailbox) put(in Intent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.ch:
	default:
	}
	m.ch <- in
}

type takeResult int

const (
	takeOK         takeResult = iota
	takeEmpty                 // nothing pending
	takeSuperseded            // an intent at or after this request was already consumed
	takeStale                 // a newer intent is pending and stays there
)

// takeFor consumes the pending intent on behalf of the handle produced by
// request token. With discardStale a newer intent is left in place.
func (m *intentMailbox) takeFor(token uint64, discardStale bool) (Intent, takeResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case in := <-m.ch:
		if in.Token != token && discardStale {
			m.ch <- in
			return in, takeStale
		}
		m.consumed = in.Token
		return in, takeOK
	default:
		if token <= m.consumed {
			return Intent{}, takeSuperseded
		}
		return Intent{}, takeEmpty
	}
}

// peek reports the waiting intent without consuming it.
func (m *intentMailbox) peek() (Intent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case in := <-m.ch:
		m.ch <- in
		return in, true
	default:
		return Intent{}, false
	}
}

type coordinatorStatus struct {
	lastEvent   string
	lastOutcome string
	lastAt      time.Time
}

// coordinator turns leader connection changes into follower actions.
type coordinator struct {
	leader        string
	follower      followerMatcher
	acquirer      ProfileAcquirer
	devices       DeviceDirectory
	locator       OperationLocator
	notifier      Notifier
	metrics       *metrics
	discardStale  bool
	invokeTimeout time.Duration

	tokens  atomic.Uint64
	pending *intentMailbox

	mu     sync.Mutex
	status coordinatorStatus
}

type coordinatorDeps struct {
	Acquirer ProfileAcquirer
	Devices  DeviceDirectory
	Locator  OperationLocator
	Notifier Notifier
	Metrics  *metrics
}

func newCoordinator(cfg Config, deps coordinatorDeps) (*coordinator, error) {
	m, err := newFollowerMatcher(cfg.Follower, cfg.FollowerMatch)
	if err != nil {
		return nil, err
	}
	return &coordinator{
		leader:        cfg.Leader,
		follower:      m,
		acquirer:      deps.Acquirer,
		devices:       deps.Devices,
		locator:       deps.Locator,
		notifier:      deps.Notifier,
		metrics:       deps.Metrics,
		discardStale:  cfg.DiscardStaleHandles,
		invokeTimeout: cfg.InvokeTimeout,
		pending:       newIntentMailbox(),
	}, nil
}

// OnConnectionEvent records the intent for a leader event and requests a
// profile handle. Events for other devices are ignored.
func (c *coordinator) OnConnectionEvent(ctx context.Context, ev ConnectionEvent) {
	defer c.recoverPanic("connection event")

	var action Action
	switch ev.Kind {
	case EventConnected:
		action = ActionConnect
	case EventDisconnected:
		action = ActionDisconnect
	default:
		errorf("irrelevant event %v for %q, ignoring", ev.Kind, ev.Name)
		c.metrics.event(ev.Kind, "irrelevant")
		return
	}

	if ev.Name == "" {
		errorf("%s event without device name (address %q), ignoring", ev.Kind, ev.Address)
		c.metrics.event(ev.Kind, "anonymous")
		return
	}
	if !strings.EqualFold(ev.Name, c.leader) {
		debugf("a bluetooth device %s (%s), but it's not %s", ev.Kind, ev.Name, c.leader)
		c.metrics.event(ev.Kind, "ignored")
		return
	}

	in := Intent{Token: c.tokens.Add(1), Action: action}
	c.pending.put(in)
	c.metrics.event(ev.Kind, "leader")
	c.record(fmt.Sprintf("%s %s", ev.Kind, ev.Name), fmt.Sprintf("pending %s #%d", action, in.Token))

	c.notifier.Notify("stereowaker", c.notice(action))
	c.acquirer.Request(ctx, in.Token, func(h ProfileHandle) {
		c.OnProfileHandleReady(ctx, h)
	})
}

func (c *coordinator) notice(action Action) string {
	if action == ActionDisconnect {
		return fmt.Sprintf("Detected disconnection from %s. Attempting to also disconnect from %s.", c.leader, c.follower)
	}
	return fmt.Sprintf("Detected connection to %s. Attempting to also connect to %s.", c.leader, c.follower)
}

// OnProfileHandleReady runs the pending intent against the follower.
func (c *coordinator) OnProfileHandleReady(ctx context.Context, h ProfileHandle) {
	defer c.recoverPanic("profile handle")

	in, res := c.pending.takeFor(h.Token, c.discardStale)
	switch res {
	case takeEmpty:
		errorf("profile handle #%d arrived with no pending action", h.Token)
		c.abort("handle without pending action")
		return
	case takeSuperseded:
		debugf("profile handle #%d superseded, its action was already served", h.Token)
		return
	case takeStale:
		warnf("discarding stale profile handle #%d, pending action is #%d", h.Token, in.Token)
		return
	}
	if in.Token != h.Token {
		debugf("profile handle #%d serves newer pending action #%d", h.Token, in.Token)
	}

	dev, ok := findBondedDevice(c.devices.BondedDevices(ctx), c.follower)
	if !ok {
		c.metrics.invocation(in.Action, "no_follower")
		c.abort(fmt.Sprintf("follower %s not bonded", c.follower))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.invokeTimeout)
	defer cancel()

	op, err := c.locator.Locate(ctx, h, in.Action, dev)
	if err != nil {
		errorf("unable to find %s operation for %s: %v", in.Action, dev.Name, err)
		c.metrics.invocation(in.Action, "unavailable")
		c.abort(fmt.Sprintf("%s unavailable", in.Action))
		return
	}
	if err := op(ctx, dev); err != nil {
		errorf("unable to %s %s: %v", in.Action, dev.Name, err)
		c.metrics.invocation(in.Action, "failed")
		c.abort(fmt.Sprintf("%s %s failed", in.Action, dev.Name))
		return
	}

	infof("%s %s (%s) done", in.Action, dev.Name, dev.Address)
	c.metrics.invocation(in.Action, "ok")
	c.record("", fmt.Sprintf("invoked %s on %s", in.Action, dev.Name))
}

func (c *coordinator) abort(reason string) {
	c.record("", "aborted: "+reason)
}

func (c *coordinator) recoverPanic(where string) {
	if r := recover(); r != nil {
		errorf("panic handling %s: %v", where, r)
		c.abort("panic in " + where)
	}
}

func (c *coordinator) record(event, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if event != "" {
		c.status.lastEvent = event
	}
	c.status.lastOutcome = outcome
	c.status.lastAt = time.Now()
}

// snapshot fills the status fields of an IPC response.
func (c *coordinator) snapshot() IPCResponse {
	resp := IPCResponse{Leader: c.leader, Follower: c.follower.String()}
	if in, ok := c.pending.peek(); ok {
		resp.Pending = in.Action.String()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	resp.LastEvent = c.status.lastEvent
	resp.LastOutcome = c.status.lastOutcome
	if !c.status.lastAt.IsZero() {
		resp.LastAt = c.status.lastAt.Format(time.RFC3339)
	}
	return resp
}
