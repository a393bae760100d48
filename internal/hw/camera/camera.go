package camera

import (
	"context"
	"time"

	"github.com/cjeanneret/camstream/internal/debug"
	"github.com/cjeanneret/camstream/internal/logic/frame"
	"github.com/cjeanneret/camstream/internal/metrics"
)

// Snapshotter is the outbound side of a network camera: one call returns
// one encoded image or an error. It says nothing about retries.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// Fetcher turns snapshot failures into "no update". It never returns an
// error; every failure is logged once and reported as absent.
type Fetcher struct {
	src    Snapshotter
	source string // shown in logs
	now    func() time.Time
}

// NewFetcher wraps src. source identifies the camera in log lines.
func NewFetcher(src Snapshotter, source string) *Fetcher {
	return &Fetcher{
		src:    src,
		source: source,
		now:    time.Now,
	}
}

// Fetch performs exactly one snapshot request. A request cut short by ctx
// is not a camera failure: it is neither logged nor counted.
func (f *Fetcher) Fetch(ctx context.Context) (frame.Frame, bool) {
	start := f.now()
	data, err := f.src.Snapshot(ctx)
	took := f.now().Sub(start)
	if err == nil && len(data) == 0 {
		err = ErrEmptySnapshot
	}
	if err != nil && ctx.Err() != nil {
		debug.Verbose("fetch from %s abandoned: %v", f.source, ctx.Err())
		return nil, false
	}
	if err != nil {
		metrics.RecordFetch(false, took)
		debug.FetchFailed(f.source, err, took)
		return nil, false
	}
	metrics.RecordFetch(true, took)
	return frame.Frame(data), true
}
