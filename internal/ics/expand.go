package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "inkcal/internal/log"
	"inkcal/internal/model"
	"inkcal/internal/view"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// Window is the half-open [Start, End) interval; occurrences starting
	// at or after End are excluded.
	Window view.Window

	// MaxOccurrencesPerEvent is a safety cap against runaway expansions.
	// If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the list of expanded occurrences and optionally
// information about truncation.
type ExpandResult struct {
	Occurrences []model.RawOccurrence
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// ExpandOccurrences takes the parsed events of one feed and expands them
// into concrete occurrences within the window. It handles:
//
//   - Single non-recurring events (included when they overlap the window)
//   - RRULE-based recurrence (DAILY/WEEKLY/MONTHLY/YEARLY, etc.)
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides
//   - All-day semantics
//
// Occurrences keep their raw shape: timed events carry an instant in the
// event's own timezone, all-day events a floating date. Normalization
// into the display timezone is the aggregator's job.
func ExpandOccurrences(source string, events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.Window.End.Before(cfg.Window.Start) {
		return result, errors.New("expand: window end is before window start")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID.
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	order := make([]string, 0, len(events))

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	all := make([]model.RawOccurrence, 0)

	for _, uid := range order {
		ov := overridesByUID[uid]
		truncated := false

		for _, ev := range baseByUID[uid] {
			occ, hitCap := expandEvent(source, ev, ov, cfg)
			if hitCap {
				truncated = true
			}
			all = append(all, occ...)
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("expand: truncated occurrences for UID",
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	result.Occurrences = all
	return result, nil
}

func expandEvent(source string, ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.RawOccurrence, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(source, ev, overrides, cfg), false
	}
	return expandRecurringEvent(source, ev, overrides, cfg)
}

func expandSingleEvent(source string, ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.RawOccurrence {
	var out []model.RawOccurrence

	if !overlapsWindow(ev, cfg.Window) {
		return out
	}

	start := ev.Start
	end := ev.End

	// Apply any override whose RECURRENCE-ID matches this start.
	if o, ok := findOverrideForStart(overrides, start); ok {
		ev = o
		start = o.Start
		end = o.End
	}

	out = append(out, makeRawOccurrence(source, ev, start, end))
	return out
}

func expandRecurringEvent(source string, ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.RawOccurrence, bool) {
	out := make([]model.RawOccurrence, 0)
	hitCap := false

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}
	r.DTStart(ev.Start)

	// Build a set so we can apply EXDATE.
	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		// Best effort: align EXDATE location with the event's start.
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Adjust the range into the event's own location for Between().
	rangeStart := cfg.Window.Start.In(ev.Start.Location())
	rangeEnd := cfg.Window.End.In(ev.Start.Location())

	occTimes := set.Between(rangeStart, rangeEnd, true)

	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	// Original duration carries over to every instance.
	span := ev.End.Sub(ev.Start)

	for _, occStart := range occTimes {
		// Between is inclusive on both ends; the window is half-open.
		if !occStart.Before(rangeEnd) {
			continue
		}

		instEv := ev
		instStart := occStart
		instEnd := occStart.Add(span)

		if o, ok := findOverrideForStart(overrides, occStart); ok {
			instEv = o
			instStart = o.Start
			instEnd = o.End
		}

		out = append(out, makeRawOccurrence(source, instEv, instStart, instEnd))
	}

	return out, hitCap
}

// findOverrideForStart finds an override event whose RECURRENCE-ID
// matches the given start with exact time equality.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.In(start.Location()).Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeRawOccurrence converts a (possibly overridden) ParsedEvent plus a
// specific start/end into a RawOccurrence, preserving the raw marker
// shape: floating date for all-day events, zoned instant otherwise.
func makeRawOccurrence(source string, ev ParsedEvent, start, end time.Time) model.RawOccurrence {
	occ := model.RawOccurrence{
		Source:   source,
		Title:    ev.Summary,
		Duration: ev.Duration,
	}

	if ev.AllDay {
		occ.Start = model.FloatingDate(start)
		if ev.HasEnd {
			m := model.FloatingDate(end)
			occ.End = &m
		}
		return occ
	}

	occ.Start = model.Instant(start)
	if ev.HasEnd {
		m := model.Instant(end)
		occ.End = &m
	}
	return occ
}

// overlapsWindow reports whether a single event intersects the half-open
// window. An event with no end or duration occupies just its start.
func overlapsWindow(ev ParsedEvent, w view.Window) bool {
	effEnd := ev.Start
	if ev.HasEnd {
		effEnd = ev.End
	} else if ev.Duration != nil {
		effEnd = ev.Start.Add(*ev.Duration)
	}
	if !ev.Start.Before(w.End) {
		return false
	}
	return !effEnd.Before(w.Start)
}
