package main

import (
	"sync/atomic"
	"time"
)

// versionCounter tracks how many times the configuration has been
// successfully (re)loaded, exposed on the /debug endpoint so an operator
// can confirm a reload actually landed.
type versionCounter struct {
	n atomic.Uint64
}

// Inc increments the counter and returns the new value.
func (v *versionCounter) Inc() (n uint64) {
	return v.n.Add(1)
}

// Load returns the current value.
func (v *versionCounter) Load() (n uint64) {
	return v.n.Load()
}

// readHeaderTimeout bounds how long the debug/metrics server waits for
// request headers, matching the teacher's own hardened http.Server defaults.
const readHeaderTimeout = 5 * time.Second
