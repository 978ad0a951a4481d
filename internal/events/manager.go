// Package events serves the campus events payload from a day-scoped cache,
// fetching from the upstream calendar API at most once per concurrent miss.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"universe/internal/dateutil"
	appLog "universe/internal/log"
	"universe/internal/metrics"
	"universe/internal/store"
)

// Payload is the upstream response body: an ordered sequence of event
// records kept as opaque JSON.
type Payload = json.RawMessage

// Fetcher retrieves the raw upstream payload for a given day.
type Fetcher interface {
	Fetch(ctx context.Context, today time.Time) ([]byte, error)
}

// Manager decides per request whether the stored blob can be served or the
// upstream must be called.
type Manager struct {
	store   store.BlobStore
	fetcher Fetcher
	clock   dateutil.Clock
	loc     *time.Location

	flight singleflight.Group
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for freshness and the upstream date.
func WithClock(c dateutil.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLocation sets the zone whose calendar day bounds freshness.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.loc = loc
		}
	}
}

func NewManager(s store.BlobStore, f Fetcher, opts ...Option) (*Manager, error) {
	if s == nil {
		return nil, errors.New("events: store is nil")
	}
	if f == nil {
		return nil, errors.New("events: fetcher is nil")
	}
	m := &Manager{
		store:   s,
		fetcher: f,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.clock == nil {
		m.clock = dateutil.SystemClock{Location: m.loc}
	}
	return m, nil
}

func (m *Manager) now() time.Time {
	return m.clock.Now().In(m.loc)
}

// IsFresh reports whether the stored blob was written on the current calendar
// day. A missing or unreadable blob is never fresh.
func (m *Manager) IsFresh(ctx context.Context) bool {
	info, err := m.store.Stat(ctx)
	if err != nil {
		return false
	}
	return dateutil.SameDay(info.ModTime, m.now(), m.loc)
}

// GetEvents returns today's events, from the cache when fresh and from the
// upstream otherwise. A blob that cannot be read or parsed counts as a miss.
func (m *Manager) GetEvents(ctx context.Context) (Payload, error) {
	if m.IsFresh(ctx) {
		payload, err := m.readCached(ctx)
		if err == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return payload, nil
		}
		metrics.CacheLookups.WithLabelValues("corrupt").Inc()
		appLog.Error("events cache unreadable; refetching", err)
	} else {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	return m.shared(ctx, false)
}

// FetchAndCache unconditionally fetches from the upstream and overwrites the
// cache. The fetched payload is returned even if the write fails.
func (m *Manager) FetchAndCache(ctx context.Context) (Payload, error) {
	return m.shared(ctx, true)
}

// shared collapses concurrent fetches for the same day into one upstream
// call. Callers stop waiting when ctx is done; the flight itself continues so
// the other waiters still get a result.
func (m *Manager) shared(ctx context.Context, force bool) (Payload, error) {
	key := "events:" + dateutil.FormatDate(m.now())
	if force {
		key = "refresh:" + key
	}

	ch := m.flight.DoChan(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		if !force && m.IsFresh(fctx) {
			// Another flight for today finished between our freshness check
			// and joining the group.
			if payload, err := m.readCached(fctx); err == nil {
				return payload, nil
			}
		}
		return m.fetchAndCache(fctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Payload), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) fetchAndCache(ctx context.Context) (Payload, error) {
	today := m.now()

	start := time.Now()
	body, err := m.fetcher.Fetch(ctx, today)
	metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamFetches.WithLabelValues("failure").Inc()
		appLog.Error("events fetch failed", err, "today", dateutil.FormatDate(today))
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	metrics.UpstreamFetches.WithLabelValues("success").Inc()

	payload, err := compact(body)
	if err != nil {
		metrics.UpstreamFetches.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("fetch events: invalid payload: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		return nil, fmt.Errorf("fetch events: indent payload: %w", err)
	}
	if err := m.store.Put(ctx, pretty.Bytes()); err != nil {
		// Serving still succeeds; the next request will simply refetch.
		metrics.CacheWriteFailures.Inc()
		appLog.Error("events cache write failed", err)
	}

	appLog.Info("events fetched", "today", dateutil.FormatDate(today), "bytes", len(payload))
	return payload, nil
}

func (m *Manager) readCached(ctx context.Context) (Payload, error) {
	data, err := m.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	return compact(data)
}

func compact(data []byte) (Payload, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, err
	}
	return Payload(buf.Bytes()), nil
}

// Status summarises the cache state.
type Status struct {
	Fresh        bool       `json:"fresh"`
	Today        string     `json:"today"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	Size         int64      `json:"size"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Status reports freshness and blob metadata without touching the upstream.
func (m *Manager) Status(ctx context.Context) Status {
	now := m.now()
	st := Status{Today: dateutil.FormatDate(now)}

	info, err := m.store.Stat(ctx)
	if err != nil {
		return st
	}
	mod := info.ModTime.In(m.loc)
	st.LastModified = &mod
	st.Size = info.Size
	st.Fresh = dateutil.SameDay(mod, now, m.loc)
	if st.Fresh {
		exp := dateutil.NextMidnight(mod, m.loc)
		st.ExpiresAt = &exp
	}
	return st
}
