// Package recording fetches recorded answers from the telephony platform.
package recording

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds recording API settings.
type Config struct {
	APIBase string
	APIKey  string
	Timeout time.Duration
}

// UpstreamError reports a failed recording fetch.
type UpstreamError struct {
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("recording upstream returned %d", e.StatusCode)
	}
	return fmt.Sprintf("recording upstream: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Recording is an open upstream audio stream. Callers must Close it.
type Recording struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 when unknown
}

func (r *Recording) Close() error {
	return r.Body.Close()
}

// Client downloads recordings with an AccessKey authorization header.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

// New creates a recording client. The timeout bounds the whole download.
func New(cfg Config) *Client {
	return &Client{
		base:   cfg.APIBase,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

// URL returns the upstream location of a recording.
func (c *Client) URL(callID, legID, recordingID string) string {
	return fmt.Sprintf("%s/calls/%s/legs/%s/recordings/%s.wav",
		c.base, url.PathEscape(callID), url.PathEscape(legID), url.PathEscape(recordingID))
}

// Open starts downloading a recording. A non-2xx response is returned as
// an *UpstreamError with the body already closed.
func (c *Client) Open(ctx context.Context, callID, legID, recordingID string) (*Recording, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(callID, legID, recordingID), nil)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	req.Header.Set("Authorization", "AccessKey "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &UpstreamError{StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/wav"
	}
	return &Recording{
		Body:          resp.Body,
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
	}, nil
}
