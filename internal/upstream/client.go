// Package upstream talks to the third-party campus calendar API.
package upstream

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"universe/internal/dateutil"
	appLog "universe/internal/log"
)

const (
	DefaultURL            = "https://d1m.drexel.edu/api/v2.0/Calendar/Events/Upcoming/7"
	DefaultUserAgent      = "UniVerse D1 Scraper"
	DefaultAcceptLanguage = "en-US;q=1"
	DefaultMaxEvents      = 100
	DefaultTimeout        = 15 * time.Second

	// maxBodyBytes bounds how much of an upstream response is read.
	maxBodyBytes = 32 << 20
)

// Config describes the upstream endpoint and the request identity.
type Config struct {
	URL            string
	Host           string // overrides the Host header; derived from URL when empty
	UserAgent      string
	AcceptLanguage string
	MaxEvents      int
	RequireImages  bool
	Timeout        time.Duration

	// InsecureSkipVerify disables TLS certificate verification. Only for test
	// environments with self-signed upstreams.
	InsecureSkipVerify bool
}

func (c *Config) normalize() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = DefaultAcceptLanguage
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = DefaultMaxEvents
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// ErrBodyTooLarge is returned when a decoded response exceeds the read cap.
var ErrBodyTooLarge = fmt.Errorf("upstream body exceeds %d bytes", maxBodyBytes)

// FetchError reports a failed upstream call: transport failure, non-2xx
// status or an unusable body.
type FetchError struct {
	Op         string // "request", "status", "decode"
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client issues single-attempt GETs against the calendar API.
type Client struct {
	cfg    Config
	base   *url.URL
	client *http.Client
}

// NewClient validates cfg and builds a client. A nil httpClient gets a
// dedicated transport honouring cfg.InsecureSkipVerify and cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	cfg.normalize()

	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("upstream: parse url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("upstream: unsupported scheme %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, errors.New("upstream: url has no host")
	}

	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			appLog.Warn("upstream TLS certificate verification disabled", "host", base.Host)
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test environments
		}
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		}
	}

	return &Client{cfg: cfg, base: base, client: httpClient}, nil
}

// Endpoint returns the full request URL for the given day.
func (c *Client) Endpoint(today time.Time) string {
	u := *c.base
	q := u.Query()
	q.Set("today", dateutil.FormatDate(today))
	q.Set("maxevents", strconv.Itoa(c.cfg.MaxEvents))
	q.Set("requireImages", strconv.FormatBool(c.cfg.RequireImages))
	u.RawQuery = q.Encode()
	return u.String()
}

// Fetch performs exactly one GET for today's upcoming events and returns the
// body as compact JSON.
func (c *Client) Fetch(ctx context.Context, today time.Time) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint(today), nil)
	if err != nil {
		return nil, &FetchError{Op: "request", Err: err}
	}
	c.setHeaders(req)

	appLog.Info("upstream fetch start", "host", req.Host, "today", dateutil.FormatDate(today))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Op: "status", StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, &FetchError{Op: "decode", StatusCode: resp.StatusCode, Err: err}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, &FetchError{Op: "decode", StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid JSON body: %w", err)}
	}

	appLog.Info("upstream fetch success", "host", req.Host, "status", resp.StatusCode, "bytes", compact.Len())
	return compact.Bytes(), nil
}

func (c *Client) setHeaders(req *http.Request) {
	host := c.cfg.Host
	if host == "" {
		host = c.base.Host
	}
	req.Host = host
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept-Language", c.cfg.AcceptLanguage)
	// Setting Accept-Encoding explicitly turns off net/http's transparent
	// gzip, so readBody decodes the body itself.
	req.Header.Set("Accept-Encoding", "gzip, deflate")
}

// readBody decodes the response and fails once more than maxBodyBytes of
// decoded output arrive. The raw stream is capped too.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = io.LimitReader(resp.Body, maxBodyBytes+1)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case "deflate":
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}

	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}
