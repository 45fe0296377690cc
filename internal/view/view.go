package view

import (
	"fmt"
	"time"
)

// Kind identifies a calendar view. The string values are the wire names
// used in config files and by the web UI.
type Kind string

const (
	DayGrid   Kind = "timeGridDay"
	WeekGrid  Kind = "timeGridWeek"
	MonthGrid Kind = "dayGridMonth"
	ListDay   Kind = "listDay"
	ListWeek  Kind = "listWeek"
	ListMonth Kind = "listMonth"
	ListYear  Kind = "listYear"
)

// ParseKind validates a view name from config or query input.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case DayGrid, WeekGrid, MonthGrid, ListDay, ListWeek, ListMonth, ListYear:
		return k, nil
	}
	return "", fmt.Errorf("view: unknown view %q", s)
}

// IsList reports whether k is one of the list view variants. List views
// share a single window rule; the variant only affects downstream grouping.
func (k Kind) IsList() bool {
	switch k {
	case ListDay, ListWeek, ListMonth, ListYear:
		return true
	}
	return false
}

// Config carries the options that influence window resolution.
type Config struct {
	// WeekStartDay is the first day of the week, ISO numbering:
	// 1 = Monday ... 7 = Sunday. Zero means Monday.
	WeekStartDay int

	// IncludeLeadingDays pulls the week view back to the most recent
	// week start. When false the week view is a plain 7-day window
	// starting today. Only meaningful for WeekGrid.
	IncludeLeadingDays bool
}

// Window is a half-open [Start, End) date interval. Both bounds are at
// local midnight in the timezone the window was resolved in.
type Window struct {
	Start time.Time
	End   time.Time
}

// Resolve computes the date window for a view. Only the calendar date of
// now (in its own location) is used; wall-clock time never influences the
// result. The returned End is always strictly after Start.
//
// Resolve is pure and cannot fail for a Kind obtained from ParseKind.
func Resolve(kind Kind, now time.Time, cfg Config) Window {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch kind {
	case DayGrid:
		return Window{Start: today, End: today.AddDate(0, 0, 1)}

	case WeekGrid:
		start := today
		if cfg.IncludeLeadingDays {
			start = today.AddDate(0, 0, -weekStartOffset(today, cfg.WeekStartDay))
		}
		return Window{Start: start, End: start.AddDate(0, 0, 7)}

	case MonthGrid:
		// One leading week of padding plus six full weeks forward gives a
		// fixed 7x6 grid regardless of month length.
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return Window{Start: first.AddDate(0, 0, -7), End: first.AddDate(0, 0, 42)}

	default:
		// All list variants: fixed two-week lookahead.
		return Window{Start: today, End: today.AddDate(0, 0, 14)}
	}
}

// weekStartOffset returns how many days to go back from day to reach the
// most recent occurrence of the configured week start (0 if day is the
// week start itself). weekStartDay uses ISO numbering, 1=Monday.
func weekStartOffset(day time.Time, weekStartDay int) int {
	if weekStartDay < 1 || weekStartDay > 7 {
		weekStartDay = 1
	}
	// Both sides mapped to 0-based Monday=0 before subtracting.
	weekday := (int(day.Weekday()) + 6) % 7
	startIdx := weekStartDay - 1
	return (weekday - startIdx + 7) % 7
}
