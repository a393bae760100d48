package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultUserAgent is sent because the camera rejects non-browser clients.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

	acceptHeader     = "image/jpeg,*/*"
	cacheBustParam   = "cb"
	authCookie       = "authId"
	activeUserCookie = "ubntActiveUser"

	// maxSnapshotBytes bounds a single response body.
	maxSnapshotBytes = 32 << 20
)

// ErrEmptySnapshot is returned when the camera answers 2xx with no body.
var ErrEmptySnapshot = errors.New("camera returned an empty snapshot")

// StatusError reports a non-2xx answer from the camera.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("camera returned HTTP %d", e.Code)
}

// HTTPSnapshot fetches JPEG snapshots from a UniFi-style camera endpoint
// authenticated by the authId cookie.
type HTTPSnapshot struct {
	url       *url.URL
	token     string
	userAgent string
	client    *http.Client
	now       func() time.Time
}

// NewHTTPSnapshot creates a snapshotter for rawURL. timeout bounds each
// request end to end.
func NewHTTPSnapshot(rawURL, token, userAgent string, timeout time.Duration) (*HTTPSnapshot, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse camera url: %w", err)
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPSnapshot{
		url:       u,
		token:     token,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		now:       time.Now,
	}, nil
}

// URL returns the configured endpoint without the cache-busting parameter.
func (s *HTTPSnapshot) URL() string {
	return s.url.String()
}

// Snapshot issues one GET. The cb query parameter changes on every call so
// that no intermediate cache serves a stale image.
func (s *HTTPSnapshot) Snapshot(ctx context.Context) ([]byte, error) {
	u := *s.url
	q := u.Query()
	q.Set(cacheBustParam, strconv.FormatInt(s.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.AddCookie(&http.Cookie{Name: authCookie, Value: s.token})
	req.AddCookie(&http.Cookie{Name: activeUserCookie, Value: "true"})

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) > maxSnapshotBytes {
		return nil, fmt.Errorf("snapshot exceeds %d bytes", maxSnapshotBytes)
	}
	return data, nil
}
