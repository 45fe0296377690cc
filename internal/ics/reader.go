package ics

import (
	"context"

	"inkcal/internal/model"
	"inkcal/internal/view"
)

// Reader is the recurrence-expanding feed reader: fetch, parse and
// expansion composed behind the aggregator's OccurrenceReader interface.
type Reader struct {
	fetcher *Fetcher

	// MaxOccurrencesPerEvent caps expansion per event; zero uses the
	// package default.
	MaxOccurrencesPerEvent int
}

// NewReader creates a Reader with a disk-backed fetch cache rooted at
// cacheDir.
func NewReader(cacheDir string) *Reader {
	return &Reader{fetcher: NewFetcher(cacheDir)}
}

// ReadOccurrences downloads the feed at source and returns its concrete
// occurrences within the window, in feed order. Errors wrap ErrFetch or
// ErrParse.
func (r *Reader) ReadOccurrences(ctx context.Context, source string, window view.Window) ([]model.RawOccurrence, error) {
	res, err := r.fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	events, err := ParseICS(source, res.Body)
	if err != nil {
		return nil, err
	}

	expanded, err := ExpandOccurrences(source, events, ExpandConfig{
		Window:                 window,
		MaxOccurrencesPerEvent: r.MaxOccurrencesPerEvent,
	})
	if err != nil {
		return nil, err
	}
	return expanded.Occurrences, nil
}
