package main

import (
	"fmt"
	"regexp"
)

// followerMatcher decides whether a bonded device is the follower.
type followerMatcher struct {
	name string
	re   *regexp.Regexp // nil for exact matching
}

func newFollowerMatcher(name, mode string) (followerMatcher, error) {
	switch mode {
	case "", matchExact:
		return followerMatcher{name: name}, nil
	case matchPattern:
		re, err := regexp.Compile(`^(?:` + name + `)$`)
		if err != nil {
			return followerMatcher{}, fmt.Errorf("compile follower pattern: %w", err)
		}
		return followerMatcher{name: name, re: re}, nil
	}
	return followerMatcher{}, fmt.Errorf("unknown follower_match %q", mode)
}

func (m followerMatcher) match(deviceName string) bool {
	if m.re != nil {
		return m.re.MatchString(deviceName)
	}
	return deviceName == m.name
}

func (m followerMatcher) String() string { return m.name }

// findBondedDevice returns the first device whose name matches.
func findBondedDevice(devices []Device, m followerMatcher) (Device, bool) {
	for _, d := range devices {
		if m.match(d.Name) {
			debugf("found device with name %s and address %s", d.Name, d.Address)
			return d, true
		}
	}
	warnf("unable to find bonded device with name %s", m.name)
	return Device{}, false
}
