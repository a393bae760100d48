package web

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// StatusEvent is one status line pushed to SSE clients.
type StatusEvent struct {
	Time  string `json:"t"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg"`
}

// StatusBroadcaster fans status events out to SSE clients. It carries log
// lines only; frames never go through it.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan StatusEvent]struct{}
	now     func() time.Time
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan StatusEvent]struct{}),
		now:     time.Now,
	}
}

// Subscribe returns a channel that receives broadcast events and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan StatusEvent, func()) {
	ch := make(chan StatusEvent, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Broadcast sends an event to all subscribed clients.
// Slow clients miss events rather than block the sender.
func (b *StatusBroadcaster) Broadcast(evt StatusEvent) {
	if evt.Time == "" {
		evt.Time = b.now().Format(time.RFC3339)
	}
	if evt.Level == "" {
		evt.Level = "info"
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- evt:
		default:
			// channel full, skip
		}
	}
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast(StatusEvent{Level: "info", Msg: msg})
}

// BroadcastWriter returns an io.Writer that turns JSON log lines into
// status events, for use with debug.SetOutput.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

// logLine is the subset of a JSON log line shown to clients.
type logLine struct {
	Level   string `json:"level"`
	Time    string `json:"time"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, raw := range bytes.Split(p, []byte("\n")) {
		text := strings.TrimSpace(string(raw))
		if text == "" {
			continue
		}
		var line logLine
		if jsonErr := json.Unmarshal([]byte(text), &line); jsonErr != nil || line.Message == "" {
			w.b.BroadcastMsg(text)
			continue
		}
		msg := line.Message
		if line.Error != "" {
			msg += ": " + line.Error
		}
		w.b.Broadcast(StatusEvent{Time: line.Time, Level: line.Level, Msg: msg})
	}
	return len(p), nil
}
