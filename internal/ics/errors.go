package ics

import "errors"

// Failure classes for a single feed source. Errors returned from this
// package wrap one of these, so callers can discriminate transport
// problems from malformed data via errors.Is even after the aggregator
// adds its own source wrapping.
var (
	ErrFetch = errors.New("ics: fetch failed")
	ErrParse = errors.New("ics: parse failed")
)
