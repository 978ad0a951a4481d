package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Category is a single category tag attached to an upstream event.
type Category struct {
	CategoryName    string `json:"CategoryName"`
	SubCategoryName string `json:"SubCategoryName,omitempty"`
}

// Event is a typed view of one upstream event record. The cache layer never
// needs it; it is only decoded for derived outputs such as the ICS feed.
type Event struct {
	EventKey    string     `json:"EventKey"`
	Title       string     `json:"Title"`
	Description string     `json:"Description"`
	Location    string     `json:"Location"`
	StartRaw    string     `json:"Start"`
	EndRaw      string     `json:"End"`
	Categories  []Category `json:"Categories"`
}

// Start parses StartRaw.
func (e Event) Start() (time.Time, error) {
	return ParseTimestamp(e.StartRaw)
}

// End parses EndRaw.
func (e Event) End() (time.Time, error) {
	return ParseTimestamp(e.EndRaw)
}

// HasCategory reports whether any category name contains sub, case-insensitively.
func (e Event) HasCategory(sub string) bool {
	sub = strings.ToLower(strings.TrimSpace(sub))
	if sub == "" {
		return true
	}
	for _, c := range e.Categories {
		if strings.Contains(strings.ToLower(c.CategoryName), sub) {
			return true
		}
	}
	return false
}

// DecodeEvents decodes a payload holding a JSON array of event records.
func DecodeEvents(payload []byte) ([]Event, error) {
	var events []Event
	if err := json.Unmarshal(payload, &events); err != nil {
		return nil, err
	}
	return events, nil
}

var epochMillis = regexp.MustCompile(`\d{9,}`)

var errNoTimestamp = errors.New("no timestamp")

// ParseTimestamp accepts RFC 3339, a zone-less "2006-01-02T15:04:05", the
// upstream's "/Date(1715531220000)/" form, or bare epoch milliseconds.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errNoTimestamp
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
		return t, nil
	}
	m := epochMillis.FindString(raw)
	if m == "" {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
	}
	ms, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
