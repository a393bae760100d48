package web

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/camstream/internal/clock"
	"github.com/cjeanneret/camstream/internal/logic/frame"
	"github.com/cjeanneret/camstream/internal/logic/stream"
)

// ---------- helpers ----------

func newTestServer(t *testing.T, cache *frame.Cache) (*httptest.Server, *StatusBroadcaster) {
	t.Helper()
	b := NewStatusBroadcaster()
	srv := NewServer(":0", cache, b, StreamOptions{FrameInterval: 5 * time.Millisecond})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts, b
}

// openFeed starts GET /video_feed and returns a multipart reader over the
// body. Cancelling the returned func closes the connection.
func openFeed(t *testing.T, ts *httptest.Server) (*multipart.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/video_feed", nil)
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("GET /video_feed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		cancel()
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		cancel()
		t.Fatalf("content type: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return multipart.NewReader(resp.Body, params["boundary"]), cancel
}

func readPart(t *testing.T, mr *multipart.Reader) string {
	t.Helper()
	p, err := mr.NextPart()
	if err != nil {
		t.Fatalf("NextPart: %v", err)
	}
	if ct := p.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("part Content-Type = %q, want image/jpeg", ct)
	}
	data, err := io.ReadAll(p)
	if err != nil {
		t.Fatalf("read part: %v", err)
	}
	return string(data)
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	ts, _ := newTestServer(t, frame.NewCache())

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(string(body), `<img src="/video_feed"`) {
		t.Error("page should embed the video feed")
	}
}

func TestUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, frame.NewCache())

	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

// ---------- HandleSnapshot ----------

func TestHandleSnapshot(t *testing.T) {
	cache := frame.NewCache()
	h := NewHandlers(cache, NewStatusBroadcaster(), StreamOptions{}, nil)

	w := httptest.NewRecorder()
	h.HandleSnapshot(w, httptest.NewRequest(http.MethodGet, "/snapshot.jpg", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("empty cache: status = %d, want 503", w.Code)
	}

	cache.Write(frame.Frame("JPEG"))
	w = httptest.NewRecorder()
	h.HandleSnapshot(w, httptest.NewRequest(http.MethodGet, "/snapshot.jpg", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Body.String() != "JPEG" {
		t.Errorf("body = %q", w.Body.String())
	}
	if w.Header().Get("Last-Modified") == "" {
		t.Error("missing Last-Modified")
	}
}

// ---------- HandleHealth ----------

func TestHandleHealth(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	cache := frame.NewCacheWithClock(clk)
	h := NewHandlers(cache, NewStatusBroadcaster(), StreamOptions{Clock: clk}, nil)

	get := func() map[string]interface{} {
		w := httptest.NewRecorder()
		h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var got map[string]interface{}
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return got
	}

	tests := []struct {
		name     string
		step     func()
		hasFrame bool
		ageMs    float64
	}{
		{"empty", func() {}, false, 0},
		{"fresh_frame", func() { cache.Write(frame.Frame("A")) }, true, 0},
		{"aged", func() { clk.Advance(1500 * time.Millisecond) }, true, 1500},
		{"rewritten", func() { cache.Write(frame.Frame("B")) }, true, 0},
		{"aged_again", func() { clk.Advance(250 * time.Millisecond) }, true, 250},
	}
	for _, tc := range tests {
		tc.step()
		got := get()
		if got["status"] != "ok" {
			t.Errorf("%s: status = %v, want ok", tc.name, got["status"])
		}
		if got["has_frame"] != tc.hasFrame {
			t.Errorf("%s: has_frame = %v, want %v", tc.name, got["has_frame"], tc.hasFrame)
		}
		age, present := got["age_ms"]
		if !present {
			t.Errorf("%s: age_ms missing from body", tc.name)
			continue
		}
		if age != tc.ageMs {
			t.Errorf("%s: age_ms = %v, want %v", tc.name, age, tc.ageMs)
		}
	}
}

// ---------- HandleVideoFeed ----------

func TestVideoFeed_Headers(t *testing.T) {
	cache := frame.NewCache()
	cache.Write(frame.Frame("A"))
	ts, _ := newTestServer(t, cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/video_feed", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != stream.ContentType {
		t.Errorf("Content-Type = %q, want %q", ct, stream.ContentType)
	}
	if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "no-cache") {
		t.Errorf("Cache-Control = %q", cc)
	}

	br := bufio.NewReader(resp.Body)
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "--frame\r\n" {
		t.Errorf("first line = %q, want boundary", line)
	}
}

func TestVideoFeed_RepeatsLatestFrame(t *testing.T) {
	cache := frame.NewCache()
	cache.Write(frame.Frame("A"))
	ts, _ := newTestServer(t, cache)

	mr, cancel := openFeed(t, ts)
	defer cancel()

	for i := 0; i < 3; i++ {
		if got := readPart(t, mr); got != "A" {
			t.Fatalf("part %d = %q, want A", i, got)
		}
	}

	cache.Write(frame.Frame("B"))
	deadline := time.Now().Add(5 * time.Second)
	for readPart(t, mr) != "B" {
		if time.Now().After(deadline) {
			t.Fatal("new frame never reached the client")
		}
	}
}

func TestVideoFeed_SilentUntilFirstFrame(t *testing.T) {
	cache := frame.NewCache()
	ts, _ := newTestServer(t, cache)

	mr, cancel := openFeed(t, ts)
	defer cancel()

	got := make(chan error, 1)
	go func() {
		_, err := mr.NextPart()
		got <- err
	}()

	select {
	case err := <-got:
		t.Fatalf("part arrived while cache empty (err=%v)", err)
	case <-time.After(100 * time.Millisecond):
	}

	cache.Write(frame.Frame("A"))
	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not resume after the first frame")
	}
}

func TestVideoFeed_ClientsAreIndependent(t *testing.T) {
	cache := frame.NewCache()
	cache.Write(frame.Frame("A"))
	ts, _ := newTestServer(t, cache)

	first, closeFirst := openFeed(t, ts)
	second, closeSecond := openFeed(t, ts)
	defer closeSecond()

	readPart(t, first)
	readPart(t, second)

	closeFirst()

	for i := 0; i < 10; i++ {
		if got := readPart(t, second); got != "A" {
			t.Fatalf("part %d = %q after other client closed", i, got)
		}
	}
}

// ---------- HandleWebSocket ----------

func TestWebSocket_ReceivesFrames(t *testing.T) {
	cache := frame.NewCache()
	cache.Write(frame.Frame("A"))
	ts, _ := newTestServer(t, cache)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	for i := 0; i < 2; i++ {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if mt != websocket.BinaryMessage {
			t.Errorf("message type = %d, want binary", mt)
		}
		if string(data) != "A" {
			t.Errorf("message %d = %q, want A", i, data)
		}
	}

	cache.Write(frame.Frame("B"))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(data) == "B" {
			break
		}
	}
}

func TestWebSocket_PlainRequestRejected(t *testing.T) {
	ts, _ := newTestServer(t, frame.NewCache())

	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// ---------- HandleStatusStream ----------

func TestStatusStream_DeliversEvents(t *testing.T) {
	ts, b := newTestServer(t, frame.NewCache())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/status/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	br := bufio.NewReader(resp.Body)
	if line, _ := br.ReadString('\n'); line != ": connected\n" {
		t.Fatalf("first line = %q", line)
	}
	br.ReadString('\n')

	tests := []struct {
		evt  StatusEvent
		name string
	}{
		{StatusEvent{Msg: "frame cached"}, "info"},
		{StatusEvent{Level: "error", Msg: "error fetching frame: HTTP 401"}, "error"},
	}
	for _, tc := range tests {
		b.Broadcast(tc.evt)

		eventLine, err := br.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if eventLine != "event: "+tc.name+"\n" {
			t.Errorf("event line = %q, want event: %s", eventLine, tc.name)
		}
		dataLine, err := br.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		var got StatusEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(dataLine), "data: ")), &got); err != nil {
			t.Fatalf("data line %q: %v", dataLine, err)
		}
		if got.Msg != tc.evt.Msg || got.Level != tc.name {
			t.Errorf("event = %+v, want msg %q level %q", got, tc.evt.Msg, tc.name)
		}
		br.ReadString('\n')
	}
}

// ---------- metrics ----------

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, frame.NewCache())

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "camstream_frame_bytes") {
		t.Error("metrics output should include camstream_frame_bytes")
	}
}
