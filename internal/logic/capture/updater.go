package capture

import (
	"context"
	"time"

	"github.com/cjeanneret/camstream/internal/clock"
	"github.com/cjeanneret/camstream/internal/debug"
	"github.com/cjeanneret/camstream/internal/logic/frame"
	"github.com/cjeanneret/camstream/internal/metrics"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultInterval = 2 * time.Second
	DefaultTick     = 100 * time.Millisecond
)

// Fetcher returns one frame, or false when this cycle produced nothing.
type Fetcher interface {
	Fetch(ctx context.Context) (frame.Frame, bool)
}

// Store receives successfully fetched frames.
type Store interface {
	Write(f frame.Frame)
}

// Options tunes the updater. Zero values fall back to the defaults.
type Options struct {
	Interval time.Duration // minimum time between two fetch attempts
	Tick     time.Duration // wake-up slice while waiting
	Clock    clock.Clock
}

// Updater keeps a Store refreshed from a Fetcher on a fixed interval.
// It alternates between waiting (sleeping in short ticks) and fetching
// (one Fetcher call in flight). A failed fetch still resets the interval
// so a dead camera is retried once per interval, not once per tick.
type Updater struct {
	fetcher  Fetcher
	store    Store
	interval time.Duration
	tick     time.Duration
	clock    clock.Clock

	lastAttempt time.Time
	attempts    int
	updates     int
}

// New returns an Updater that has not attempted anything yet, so its
// first Tick fetches immediately.
func New(f Fetcher, s Store, opts Options) *Updater {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Updater{
		fetcher:  f,
		store:    s,
		interval: opts.Interval,
		tick:     opts.Tick,
		clock:    opts.Clock,
	}
}

// Run wakes every tick until ctx is cancelled and returns ctx.Err().
// Fetch failures never stop the loop.
func (u *Updater) Run(ctx context.Context) error {
	debug.Verbose("updater: running (interval=%v, tick=%v)", u.interval, u.tick)
	for {
		u.Tick(ctx, u.clock.Now())

		select {
		case <-ctx.Done():
			debug.Verbose("updater: stopped after %d attempts, %d updates", u.attempts, u.updates)
			return ctx.Err()
		case <-u.clock.After(u.tick):
		}
	}
}

// Tick runs one wake slice at time now. It fetches when a full interval
// has passed since the last attempt (or nothing was attempted yet) and
// reports whether a fetch was made.
func (u *Updater) Tick(ctx context.Context, now time.Time) bool {
	if !u.lastAttempt.IsZero() && now.Sub(u.lastAttempt) < u.interval {
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	u.attempts++
	start := u.clock.Now()
	if f, ok := u.fetcher.Fetch(ctx); ok {
		u.store.Write(f)
		u.updates++
		at := u.clock.Now()
		metrics.RecordFrame(len(f), at)
		debug.FrameCached(len(f), at.Sub(start))
	}
	u.lastAttempt = now
	return true
}

// Attempts returns how many fetches were made. Not safe to call while Run
// is active.
func (u *Updater) Attempts() int {
	return u.attempts
}
