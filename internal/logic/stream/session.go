package stream

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/camstream/internal/clock"
	"github.com/cjeanneret/camstream/internal/debug"
	"github.com/cjeanneret/camstream/internal/logic/frame"
	"github.com/cjeanneret/camstream/internal/metrics"
)

// DefaultInterval is the pause between two reads of the cache.
const DefaultInterval = 100 * time.Millisecond

// Source is the read side of the frame cache.
type Source interface {
	Read() (frame.Frame, bool)
}

// Options configures a Session. Zero values fall back to defaults.
type Options struct {
	Interval  time.Duration
	Clock     clock.Clock
	Transport string // label for logs and metrics, e.g. "mjpeg"
}

// Session is one client's view of the cache. It polls at its own pace and
// shares nothing with other sessions except the Source, so a slow or
// disconnected client never holds up another one.
//
// Sessions do not remember what they sent: the same Frame may be produced
// several times in a row, and frames overwritten between two reads are
// never seen.
type Session struct {
	id        string
	src       Source
	interval  time.Duration
	clock     clock.Clock
	transport string

	started time.Time
	polled  bool
	sent    int
	closed  bool
}

// NewSession creates a session reading from src with a fresh random ID.
// Call Start before the first Next so it is counted as open.
func NewSession(src Source, opts Options) *Session {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Transport == "" {
		opts.Transport = "mjpeg"
	}
	return &Session{
		id:        uuid.NewString(),
		src:       src,
		interval:  opts.Interval,
		clock:     opts.Clock,
		transport: opts.Transport,
	}
}

// ID identifies the session in log lines.
func (s *Session) ID() string { return s.id }

// Sent returns how many frames Next has produced.
func (s *Session) Sent() int { return s.sent }

// Start marks the session open.
func (s *Session) Start() {
	s.started = s.clock.Now()
	metrics.SessionOpened(s.transport)
	debug.Session(s.id, s.transport, "stream opened", 0)
}

// Next blocks until the cache holds a Frame and returns it. The first call
// reads immediately; later calls wait one interval first. While the cache
// is empty nothing is produced and the session keeps polling. Next returns
// ctx.Err() once ctx is done, which is how a closed connection ends the
// session.
func (s *Session) Next(ctx context.Context) (frame.Frame, error) {
	for {
		if s.polled {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-s.clock.After(s.interval):
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.polled = true

		if f, ok := s.src.Read(); ok {
			s.sent++
			metrics.RecordChunk(s.transport)
			debug.Trace("session %s: frame %d (%d bytes)", s.id, s.sent, len(f))
			return f, nil
		}
	}
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	metrics.SessionClosed(s.transport)
	debug.Session(s.id, s.transport, "stream closed", s.sent)
	debug.Verbose("session %s: open for %v", s.id, s.clock.Now().Sub(s.started))
}
