package main

import (
	"log"
	"os"
	"sync/atomic"
)

var debugEnabled atomic.Bool

func init() { //nolint:gochecknoinits // env-driven debug switch
	if v := os.Getenv("STEREOWAKER_DEBUG"); v != "" && v != "0" {
		debugEnabled.Store(true)
	}
}

func setDebug(on bool) {
	if on {
		debugEnabled.Store(true)
	}
}

func debugf(format string, args ...any) {
	if !debugEnabled.Load() {
		return
	}
	log.Printf("[DEBUG] "+format, args...)
}

func infof(format string, args ...any) {
	log.Printf("[INFO] "+format, args...)
}

func warnf(format string, args ...any) {
	log.Printf("[WARN] "+format, args...)
}

func errorf(format string, args ...any) {
	log.Printf("[ERROR] "+format, args...)
}
