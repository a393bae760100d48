package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/camstream/internal/clock"
	"github.com/cjeanneret/camstream/internal/debug"
	"github.com/cjeanneret/camstream/internal/logic/frame"
	"github.com/cjeanneret/camstream/internal/logic/stream"
)

const (
	wsWriteTimeout  = 10 * time.Second
	statusHeartbeat = 30 * time.Second
)

// FrameSource is the read side of the frame cache.
type FrameSource interface {
	Read() (frame.Frame, bool)
	Snapshot() (frame.Frame, time.Time, bool)
}

// StreamOptions sets the per-client cadence.
type StreamOptions struct {
	FrameInterval time.Duration
	Clock         clock.Clock
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Frames      FrameSource
	Broadcaster *StatusBroadcaster
	Stream      StreamOptions
	staticFS    fs.FS
	upgrader    websocket.Upgrader
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(frames FrameSource, broadcaster *StatusBroadcaster, opts StreamOptions, staticFS fs.FS) *Handlers {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Handlers{
		Frames:      frames,
		Broadcaster: broadcaster,
		Stream:      opts,
		staticFS:    staticFS,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

func (h *Handlers) newSession(transport string) *stream.Session {
	return stream.NewSession(h.Frames, stream.Options{
		Interval:  h.Stream.FrameInterval,
		Clock:     h.Stream.Clock,
		Transport: transport,
	})
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleVideoFeed handles GET /video_feed: an endless multipart-replace
// response, one part per cache read. It returns when the client goes away
// or the server shuts down.
func (h *Handlers) HandleVideoFeed(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no") // nginx
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	debug.Live("mjpeg client connected from %s", r.RemoteAddr)
	sess := h.newSession("mjpeg")
	sess.Start()
	defer sess.Close()

	for {
		f, err := sess.Next(r.Context())
		if err != nil {
			return
		}
		if _, err := w.Write(stream.EncodePart(f)); err != nil {
			debug.Trace("session %s: write failed: %v", sess.ID(), err)
			return
		}
		flusher.Flush()
	}
}

// HandleWebSocket handles GET /ws: the same feed as /video_feed, one
// binary message per frame.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		debug.Error(fmt.Errorf("websocket upgrade from %s: %w", r.RemoteAddr, err))
		return
	}
	defer conn.Close()
	debug.Live("websocket connected from %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reading is required to process close and ping frames. Any read
	// error means the client is gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sess := h.newSession("websocket")
	sess.Start()
	defer sess.Close()

	for {
		f, err := sess.Next(ctx)
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, f); err != nil {
			debug.Trace("session %s: write failed: %v", sess.ID(), err)
			return
		}
	}
}

// HandleSnapshot handles GET /snapshot.jpg with the latest cached frame.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	f, updatedAt, ok := h.Frames.Snapshot()
	if !ok {
		w.Header().Set("Retry-After", "2")
		http.Error(w, "no frame available yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", stream.PartContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(f)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Last-Modified", updatedAt.UTC().Format(http.TimeFormat))
	w.Write(f)
}

// Health is the body of GET /healthz.
type Health struct {
	Status   string `json:"status"`
	HasFrame bool   `json:"has_frame"`
	AgeMs    int64  `json:"age_ms"`
}

// HandleHealth reports whether a frame has been cached and how old it is.
// The age is measured on the stream clock, which must be the clock that
// stamps cache writes. age_ms is 0 while no frame is cached.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := Health{Status: "ok"}
	if _, updatedAt, ok := h.Frames.Snapshot(); ok {
		resp.HasFrame = true
		resp.AgeMs = h.Stream.Clock.Now().Sub(updatedAt).Milliseconds()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleStatusStream handles GET /status/stream: log events as SSE, each
// named after its level so the page can listen for "error" separately.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	events, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(statusHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := writeStatusEvent(w, evt); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// writeStatusEvent writes one SSE record: "event: <level>" then the JSON body.
func writeStatusEvent(w io.Writer, evt StatusEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Level, data)
	return err
}
