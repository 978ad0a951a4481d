package events

import (
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "universe/internal/log"
	"universe/internal/model"
)

const icsProductID = "-//UniVerse//Campus Events//EN"

// ICSOptions filters the records exported by ICS.
type ICSOptions struct {
	// Name is written as the calendar's display name.
	Name string
	// Category keeps only events with a category name containing it.
	Category string
	// UpcomingOnly drops events starting before Now.
	UpcomingOnly bool
	Now          time.Time
}

// ICS renders the payload's records as an iCalendar document. Records with
// no parsable start time are skipped.
func ICS(payload Payload, opts ICSOptions) (string, int, error) {
	records, err := model.DecodeEvents(payload)
	if err != nil {
		return "", 0, err
	}

	stamp := opts.Now
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(icsProductID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	written := 0
	for i, rec := range records {
		start, err := rec.Start()
		if err != nil {
			appLog.Debug("ics export: skipping record without start", "index", i, "key", rec.EventKey)
			continue
		}
		if opts.UpcomingOnly && start.Before(stamp) {
			continue
		}
		if !rec.HasCategory(opts.Category) {
			continue
		}

		uid := rec.EventKey
		if uid == "" {
			uid = start.UTC().Format("20060102T150405Z") + "-" + rec.Title
		}

		ev := cal.AddEvent(uid + "@universe")
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(start.UTC())
		if end, err := rec.End(); err == nil && !end.Before(start) {
			ev.SetEndAt(end.UTC())
		}
		ev.SetSummary(rec.Title)
		if rec.Description != "" {
			ev.SetDescription(rec.Description)
		}
		if rec.Location != "" {
			ev.SetLocation(rec.Location)
		}
		for _, c := range rec.Categories {
			if c.CategoryName != "" {
				ev.AddProperty(ical.ComponentPropertyCategories, c.CategoryName)
			}
		}
		written++
	}

	return cal.Serialize(), written, nil
}
