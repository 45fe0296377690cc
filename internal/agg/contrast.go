package agg

import (
	"fmt"
	"strings"
)

// Luma at or above this renders black text; below it, white.
const contrastThreshold = 150

// ContrastColor returns "#000000" or "#ffffff", whichever is legible on
// the given background color. Brightness is estimated with the YIQ luma
// weights: Y = (299R + 587G + 114B) / 1000.
func ContrastColor(color string) (string, error) {
	r, g, b, err := parseHexColor(color)
	if err != nil {
		return "", err
	}
	luma := (299*r + 587*g + 114*b) / 1000
	if luma >= contrastThreshold {
		return "#000000", nil
	}
	return "#ffffff", nil
}

// parseHexColor accepts "#RGB" and "#RRGGBB", case-insensitive.
func parseHexColor(s string) (r, g, b int, err error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		return 0, 0, 0, fmt.Errorf("invalid color %q", s)
	}
	hexDigits := s[1:]

	switch len(hexDigits) {
	case 3:
		r, g, b, err = hexNibble(hexDigits[0]), hexNibble(hexDigits[1]), hexNibble(hexDigits[2]), nil
		if r < 0 || g < 0 || b < 0 {
			return 0, 0, 0, fmt.Errorf("invalid color %q", s)
		}
		// Expand each nibble to a full byte, e.g. #f80 -> #ff8800.
		r, g, b = r*17, g*17, b*17
	case 6:
		r = hexNibble(hexDigits[0])<<4 | hexNibble(hexDigits[1])
		g = hexNibble(hexDigits[2])<<4 | hexNibble(hexDigits[3])
		b = hexNibble(hexDigits[4])<<4 | hexNibble(hexDigits[5])
		if r < 0 || g < 0 || b < 0 {
			return 0, 0, 0, fmt.Errorf("invalid color %q", s)
		}
	default:
		return 0, 0, 0, fmt.Errorf("invalid color %q", s)
	}
	return r, g, b, nil
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}
