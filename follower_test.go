package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindBondedDeviceExact(t *testing.T) {
	m, err := newFollowerMatcher("BT Audio", matchExact)
	require.NoError(t, err)

	devices := []Device{
		{Name: "bt audio", Address: "01:00:00:00:00:00"},
		{Name: "BT Audio", Address: "02:00:00:00:00:00"},
		{Name: "BT Audio", Address: "03:00:00:00:00:00"},
	}
	d, ok := findBondedDevice(devices, m)
	require.True(t, ok)
	assert.Equal(t, "02:00:00:00:00:00", d.Address, "first match wins")

	_, ok = findBondedDevice(devices[:1], m)
	assert.False(t, ok)

	_, ok = findBondedDevice(nil, m)
	assert.False(t, ok)
}

func TestFindBondedDevicePattern(t *testing.T) {
	m, err := newFollowerMatcher("BT (Audio|Speaker)", matchPattern)
	require.NoError(t, err)

	assert.True(t, m.match("BT Speaker"))
	assert.True(t, m.match("BT Audio"))
	assert.False(t, m.match("BT Audio 2"), "whole name must match")
	assert.False(t, m.match("My BT Audio"))
}

func TestExactMatchTreatsMetacharactersLiterally(t *testing.T) {
	m, err := newFollowerMatcher("Car+Audio (2)", matchExact)
	require.NoError(t, err)

	assert.True(t, m.match("Car+Audio (2)"))
	assert.False(t, m.match("CarrAudio 2"))
}

func TestNewFollowerMatcherErrors(t *testing.T) {
	_, err := newFollowerMatcher("BT (", matchPattern)
	assert.Error(t, err)

	_, err = newFollowerMatcher("BT Audio", "glob")
	assert.Error(t, err)
}

func TestPatternIsTheConfiguredFollower(t *testing.T) {
	m, err := newFollowerMatcher("BT.*", matchPattern)
	require.NoError(t, err)

	// A device whose name looks like a pattern is still just input.
	_, ok := findBondedDevice([]Device{{Name: ".*", Address: "01:00:00:00:00:00"}}, m)
	assert.False(t, ok)
}
