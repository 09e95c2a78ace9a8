// Package reflog provides the rate-limited logger the translator uses for
// the "never fatal, always logged" error policy of spec.md §7. It follows
// the teacher's convention in ovsdb.Client of accepting a logger as a
// constructor option (see Debug(ll *log.Logger) in ovsdb/client.go),
// generalized from the standard library's *log.Logger to logrus for
// structured fields.
package reflog

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimited wraps a logrus.FieldLogger and drops repeated warnings for
// the same site once it has logged burst times within window.
type RateLimited struct {
	log    logrus.FieldLogger
	window time.Duration
	burst  int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	windowStart time.Time
	count       int
	dropped     uint64
}

// New returns a RateLimited logger that allows at most burst messages per
// (window) per call site name.
func New(log logrus.FieldLogger, window time.Duration, burst int) *RateLimited {
	return &RateLimited{log: log, window: window, burst: burst, buckets: make(map[string]*bucket)}
}

// Warnf logs a rate-limited warning tagged with site, a short identifier
// for the call site (e.g. "parse-match", "cid-exhausted") so each error
// class is throttled independently, matching the taxonomy in spec.md §7.
func (r *RateLimited) Warnf(site string, format string, args ...interface{}) {
	if r == nil {
		return
	}

	r.mu.Lock()
	b, ok := r.buckets[site]
	now := time.Now()
	if !ok {
		b = &bucket{windowStart: now}
		r.buckets[site] = b
	}
	if now.Sub(b.windowStart) > r.window {
		if b.dropped > 0 {
			r.log.WithField("site", site).WithField("dropped", b.dropped).
				Warn("rate-limited warnings suppressed in prior window")
		}
		b.windowStart = now
		b.count = 0
		b.dropped = 0
	}

	allow := b.count < r.burst
	if allow {
		b.count++
	} else {
		b.dropped++
	}
	r.mu.Unlock()

	if allow {
		r.log.WithField("site", site).Warnf(format, args...)
	}
}

// DroppedCount returns the number of suppressed messages for site since
// its window last reset, for metrics export.
func (r *RateLimited) DroppedCount(site string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buckets[site]; ok {
		return b.dropped
	}
	return 0
}
