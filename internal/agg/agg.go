package agg

import (
	"context"
	"fmt"
	"strings"
	"time"

	appLog "inkcal/internal/log"
	"inkcal/internal/model"
	"inkcal/internal/view"
)

// Source pairs a feed location with its configured display color.
type Source struct {
	// Ref is the feed location handed to the reader (typically a URL).
	Ref string
	// Color is the background color for events from this feed,
	// "#RGB" or "#RRGGBB".
	Color string
}

// OccurrenceReader is the recurrence-expanding reader capability. It
// returns the concrete occurrences of a single feed within a window,
// failing on transport or malformed-data problems.
type OccurrenceReader interface {
	ReadOccurrences(ctx context.Context, source string, window view.Window) ([]model.RawOccurrence, error)
}

// ConfigError reports invalid aggregation input. It is always raised
// before any reader work starts.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "agg: " + e.Reason
}

// SourceError wraps a reader failure with the feed it came from.
// Aggregation is all-or-nothing across sources, so a single SourceError
// aborts the whole call.
type SourceError struct {
	Ref string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("agg: source %s: %v", e.Ref, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Aggregator turns raw feed occurrences into a deduplicated, ordered
// list of canonical events. It holds no state between calls; independent
// calls are safe to run concurrently.
type Aggregator struct {
	reader OccurrenceReader
}

func New(reader OccurrenceReader) *Aggregator {
	return &Aggregator{reader: reader}
}

// Aggregate reads every source in order, normalizes each occurrence into
// the display timezone and drops duplicates across all sources within
// this call. The first occurrence of a dedup key wins, including its
// source's color. Result order is source order, then reader order; no
// sorting by start time is performed.
//
// An empty result is valid, not an error. Any reader failure aborts the
// call with a SourceError.
func (a *Aggregator) Aggregate(ctx context.Context, sources []Source, window view.Window, loc *time.Location) ([]model.CanonicalEvent, error) {
	if len(sources) == 0 {
		return nil, &ConfigError{Reason: "at least one calendar source is required"}
	}

	// Validate everything up front so no network or parse work happens
	// for a bad configuration.
	textColors := make([]string, len(sources))
	for i, src := range sources {
		if strings.TrimSpace(src.Ref) == "" {
			return nil, &ConfigError{Reason: "calendar source location is blank"}
		}
		tc, err := ContrastColor(src.Color)
		if err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("source %s: %v", src.Ref, err)}
		}
		textColors[i] = tc
	}

	// The dedup accumulator is local to this call and shared across all
	// sources in it, which is why sources are processed sequentially.
	seen := make(map[string]struct{})
	events := make([]model.CanonicalEvent, 0)

	for i, src := range sources {
		occs, err := a.reader.ReadOccurrences(ctx, src.Ref, window)
		if err != nil {
			return nil, &SourceError{Ref: src.Ref, Err: err}
		}
		appLog.Debug("source read", "ref", src.Ref, "occurrences", len(occs))

		for _, occ := range occs {
			key := occ.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			events = append(events, normalize(occ, src.Color, textColors[i], loc))
		}
	}

	return events, nil
}

// normalize converts one raw occurrence into a canonical event in the
// display timezone.
func normalize(occ model.RawOccurrence, bg, fg string, loc *time.Location) model.CanonicalEvent {
	ev := model.CanonicalEvent{
		Title:           occ.Title,
		BackgroundColor: bg,
		TextColor:       fg,
	}

	if occ.Start.Kind == model.MarkerFloatingDate {
		ev.AllDay = true
		ev.Start = occ.Start.String()
	} else {
		ev.Start = occ.Start.Instant.In(loc).Format(time.RFC3339)
	}

	if end, ok := resolveEnd(occ, loc); ok {
		ev.End = end
	}
	return ev
}

// resolveEnd applies the end precedence rule: explicit end marker first,
// then start+duration, otherwise no end at all.
func resolveEnd(occ model.RawOccurrence, loc *time.Location) (string, bool) {
	switch {
	case occ.End != nil:
		m := *occ.End
		if m.Kind == model.MarkerFloatingDate {
			return m.String(), true
		}
		return m.Instant.In(loc).Format(time.RFC3339), true

	case occ.Duration != nil:
		if occ.Start.Kind == model.MarkerFloatingDate {
			return occ.Start.Date.Add(*occ.Duration).Format("2006-01-02"), true
		}
		return occ.Start.Instant.Add(*occ.Duration).In(loc).Format(time.RFC3339), true
	}
	return "", false
}
