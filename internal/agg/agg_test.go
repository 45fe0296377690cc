package agg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkcal/internal/model"
	"inkcal/internal/view"
)

var errFeedDown = errors.New("feed unreachable")

// fakeReader serves canned occurrences per source ref, recording the
// order it was called in.
type fakeReader struct {
	bySource map[string][]model.RawOccurrence
	failing  map[string]error
	calls    []string
}

func (f *fakeReader) ReadOccurrences(_ context.Context, source string, _ view.Window) ([]model.RawOccurrence, error) {
	f.calls = append(f.calls, source)
	if err, ok := f.failing[source]; ok {
		return nil, err
	}
	return f.bySource[source], nil
}

func testWindow() view.Window {
	start := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	return view.Window{Start: start, End: start.AddDate(0, 0, 7)}
}

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func durationPtr(d time.Duration) *time.Duration { return &d }

func markerPtr(m model.Marker) *model.Marker { return &m }

func TestAggregateNormalizesTimedEvent(t *testing.T) {
	loc := berlin(t)
	// Raw marker in UTC; display timezone is Berlin (+01:00 in March
	// before the DST switch).
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	reader := &fakeReader{bySource: map[string][]model.RawOccurrence{
		"a": {{
			Title: "Standup",
			Start: model.Instant(start),
			End:   markerPtr(model.Instant(end)),
		}},
	}}

	events, err := New(reader).Aggregate(context.Background(),
		[]Source{{Ref: "a", Color: "#ff0000"}}, testWindow(), loc)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "Standup", ev.Title)
	assert.Equal(t, "2026-03-10T10:00:00+01:00", ev.Start)
	assert.Equal(t, "2026-03-10T11:00:00+01:00", ev.End)
	assert.False(t, ev.AllDay)
	assert.Equal(t, "#ff0000", ev.BackgroundColor)
	assert.Equal(t, "#ffffff", ev.TextColor)
}

func TestAggregateAllDayEvent(t *testing.T) {
	day := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	reader := &fakeReader{bySource: map[string][]model.RawOccurrence{
		"a": {{
			Title: "Holiday",
			Start: model.FloatingDate(day),
			End:   markerPtr(model.FloatingDate(day.AddDate(0, 0, 1))),
		}},
	}}

	events, err := New(reader).Aggregate(context.Background(),
		[]Source{{Ref: "a", Color: "#ffffff"}}, testWindow(), berlin(t))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.True(t, ev.AllDay)
	assert.Equal(t, "2026-03-12", ev.Start)
	assert.Equal(t, "2026-03-13", ev.End)
	assert.Equal(t, "#000000", ev.TextColor)
}

func TestAggregateEndPrecedence(t *testing.T) {
	loc := time.UTC
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	explicitEnd := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	occ := model.RawOccurrence{
		Title:    "Conflicted",
		Start:    model.Instant(start),
		End:      markerPtr(model.Instant(explicitEnd)),
		Duration: durationPtr(4 * time.Hour),
	}
	reader := &fakeReader{bySource: map[string][]model.RawOccurrence{"a": {occ}}}

	events, err := New(reader).Aggregate(context.Background(),
		[]Source{{Ref: "a", Color: "#000000"}}, testWindow(), loc)
	require.NoError(t, err)
	require.Len(t, events, 1)

	// The explicit end marker wins over start+duration.
	assert.Equal(t, "2026-03-10T09:30:00Z", events[0].End)
}

func TestAggregateDurationFallback(t *testing.T) {
	loc := time.UTC
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	reader := &fakeReader{bySource: map[string][]model.RawOccurrence{
		"a": {
			{
				Title:    "Timed with duration",
				Start:    model.Instant(start),
				Duration: durationPtr(90 * time.Minute),
			},
			{
				Title:    "All-day with duration",
				Start:    model.FloatingDate(start),
				Duration: durationPtr(48 * time.Hour),
			},
			{
				Title: "No end at all",
				Start: model.Instant(start.Add(time.Hour)),
			},
		},
	}}

	events, err := New(reader).Aggregate(context.Background(),
		[]Source{{Ref: "a", Color: "#123456"}}, testWindow(), loc)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "2026-03-10T10:30:00Z", events[0].End)
	assert.Equal(t, "2026-03-12", events[1].End)
	assert.Empty(t, events[2].End)
}

func TestAggregateDeduplicatesAcrossSources(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	dup := model.RawOccurrence{Title: "Weekly sync", Start: model.Instant(start)}

	// The second source re-emits the same title+start with a different
	// end; the dedup key ignores that difference on purpose.
	dupWithEnd := dup
	dupWithEnd.End = markerPtr(model.Instant(start.Add(time.Hour)))

	reader := &fakeReader{bySource: map[string][]model.RawOccurrence{
		"first":  {dup},
		"second": {dupWithEnd, {Title: "Unique", Start: model.Instant(start.Add(2 * time.Hour))}},
	}}

	events, err := New(reader).Aggregate(context.Background(),
		[]Source{{Ref: "first", Color: "#ffffff"}, {Ref: "second", Color: "#000000"}},
		testWindow(), time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// The first-listed source wins, including its color.
	assert.Equal(t, "Weekly sync", events[0].Title)
	assert.Equal(t, "#ffffff", events[0].BackgroundColor)
	assert.Empty(t, events[0].End)
	assert.Equal(t, "Unique", events[1].Title)
}

func TestAggregateDeduplicatesWithinSource(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	occ := model.RawOccurrence{Title: "Doubled", Start: model.Instant(start)}

	reader := &fakeReader{bySource: map[string][]model.RawOccurrence{
		"a": {occ, occ},
	}}

	events, err := New(reader).Aggregate(context.Background(),
		[]Source{{Ref: "a", Color: "#abcdef"}}, testWindow(), time.UTC)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAggregateKeepsReaderOrder(t *testing.T) {
	early := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	late := time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC)

	reader := &fakeReader{bySource: map[string][]model.RawOccurrence{
		"a": {{Title: "Late", Start: model.Instant(late)}},
		"b": {{Title: "Early", Start: model.Instant(early)}},
	}}

	events, err := New(reader).Aggregate(context.Background(),
		[]Source{{Ref: "a", Color: "#ffffff"}, {Ref: "b", Color: "#ffffff"}},
		testWindow(), time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// No chronological sorting: source order, then reader order.
	assert.Equal(t, "Late", events[0].Title)
	assert.Equal(t, "Early", events[1].Title)
	assert.Equal(t, []string{"a", "b"}, reader.calls)
}

func TestAggregateIdempotent(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	reader := &fakeReader{bySource: map[string][]model.RawOccurrence{
		"a": {
			{Title: "One", Start: model.Instant(start)},
			{Title: "Two", Start: model.FloatingDate(start.AddDate(0, 0, 1))},
		},
	}}
	sources := []Source{{Ref: "a", Color: "#336699"}}

	a := New(reader)
	first, err := a.Aggregate(context.Background(), sources, testWindow(), time.UTC)
	require.NoError(t, err)
	second, err := a.Aggregate(context.Background(), sources, testWindow(), time.UTC)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAggregateEmptyResultIsNotAnError(t *testing.T) {
	reader := &fakeReader{bySource: map[string][]model.RawOccurrence{}}

	events, err := New(reader).Aggregate(context.Background(),
		[]Source{{Ref: "a", Color: "#ffffff"}}, testWindow(), time.UTC)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAggregateConfigErrors(t *testing.T) {
	reader := &fakeReader{bySource: map[string][]model.RawOccurrence{}}
	a := New(reader)
	window := testWindow()

	var cfgErr *ConfigError

	_, err := a.Aggregate(context.Background(), nil, window, time.UTC)
	require.ErrorAs(t, err, &cfgErr)

	_, err = a.Aggregate(context.Background(),
		[]Source{{Ref: "   ", Color: "#ffffff"}}, window, time.UTC)
	require.ErrorAs(t, err, &cfgErr)

	_, err = a.Aggregate(context.Background(),
		[]Source{{Ref: "a", Color: "not-a-color"}}, window, time.UTC)
	require.ErrorAs(t, err, &cfgErr)

	// Validation happens before any reader work.
	assert.Empty(t, reader.calls)
}

func TestAggregateSourceFailureAbortsAll(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	reader := &fakeReader{
		bySource: map[string][]model.RawOccurrence{
			"good": {{Title: "Fine", Start: model.Instant(start)}},
		},
		failing: map[string]error{"bad": errFeedDown},
	}

	events, err := New(reader).Aggregate(context.Background(),
		[]Source{{Ref: "good", Color: "#ffffff"}, {Ref: "bad", Color: "#ffffff"}},
		testWindow(), time.UTC)

	// All-or-nothing: no partial results.
	assert.Nil(t, events)

	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "bad", srcErr.Ref)
	assert.ErrorIs(t, err, errFeedDown)
}
