// Package timeutil provides wall-clock-only time math for quiet hours.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a time of day expressed as seconds since midnight.
type ClockTime int

// ParseClock parses "HH:MM" or "HH:MM:SS" into a ClockTime.
func ParseClock(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	var fields [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
		}
		fields[i] = n
	}
	h, m, sec := fields[0], fields[1], fields[2]
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return ClockTime(h*3600 + m*60 + sec), nil
}

// ClockOf projects a timestamp onto its time of day.
func ClockOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// String renders the clock time as HH:MM:SS.
func (c ClockTime) String() string {
	s := int(c)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}

// Between reports whether cur falls inside [start, end], handling
// windows that wrap past midnight (e.g. 22:00 to 08:00).
func Between(cur, start, end ClockTime) bool {
	if start <= end {
		return start <= cur && cur <= end
	}
	return cur >= start || cur <= end
}
