package domain

import (
	"strings"
	"time"
)

// Window names a historical lookback period.
type Window string

const (
	Window1Month  Window = "1mo"
	Window6Months Window = "6mo"
	Window1Year   Window = "1y"
)

// Windows lists every supported lookback window, shortest first.
var Windows = []Window{Window1Month, Window6Months, Window1Year}

// Valid reports whether w is a supported window.
func (w Window) Valid() bool {
	for _, known := range Windows {
		if w == known {
			return true
		}
	}
	return false
}

// Start returns the first date covered by the window ending at anchor. The
// day of month is clamped to the last day of the target month, so a window
// ending on Mar 31 starts on the last day of February.
func (w Window) Start(anchor time.Time) time.Time {
	switch w {
	case Window1Month:
		return shiftMonths(anchor, -1)
	case Window6Months:
		return shiftMonths(anchor, -6)
	case Window1Year:
		return shiftMonths(anchor, -12)
	}
	return anchor
}

func shiftMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	hour, minute, sec := t.Clock()
	return time.Date(first.Year(), first.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

// ParseWindow converts user input into a Window.
func ParseWindow(value string) (Window, error) {
	w := Window(strings.ToLower(strings.TrimSpace(value)))
	if !w.Valid() {
		return "", &InvalidRequestError{Field: "period", Reason: "unsupported window " + quote(value)}
	}
	return w, nil
}
