// Package timeutil parses the compact durations used by report and filter
// flags, such as "1w", "3d" or "1w2d6h".
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// DefaultWindow is used when no window is given.
const DefaultWindow = "1w"

const (
	day  = 24 * time.Hour
	week = 7 * day
)

type unit struct {
	label   string
	value   time.Duration
	aliases []string
}

// units are ordered largest first for formatting.
var units = []unit{
	{"w", week, []string{"wk", "wks", "week", "weeks"}},
	{"d", day, []string{"day", "days"}},
	{"h", time.Hour, []string{"hr", "hrs", "hour", "hours"}},
	{"m", time.Minute, []string{"min", "mins", "minute", "minutes"}},
	{"s", time.Second, []string{"sec", "secs", "second", "seconds"}},
}

func lookup(name string) (time.Duration, bool) {
	for _, u := range units {
		if name == u.label {
			return u.value, true
		}
		for _, a := range u.aliases {
			if name == a {
				return u.value, true
			}
		}
	}
	return 0, false
}

// ParseWindow parses input into a duration and its canonical label. An empty
// input means DefaultWindow.
func ParseWindow(input string) (time.Duration, string, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		s = DefaultWindow
	}

	var total time.Duration
	for s != "" {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		n := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
		if n <= 0 {
			return 0, "", fmt.Errorf("invalid duration segment %q", s)
		}
		value, err := strconv.ParseInt(s[:n], 10, 64)
		if err != nil {
			return 0, "", fmt.Errorf("invalid duration value %q: %w", s[:n], err)
		}
		s = strings.TrimLeftFunc(s[n:], unicode.IsSpace)

		m := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
		if m < 0 {
			m = len(s)
		}
		if m == 0 {
			return 0, "", fmt.Errorf("missing unit after %d", value)
		}
		base, ok := lookup(s[:m])
		if !ok {
			return 0, "", fmt.Errorf("unsupported duration unit %q", s[:m])
		}
		total += time.Duration(value) * base
		s = s[m:]
	}

	if total <= 0 {
		return 0, "", fmt.Errorf("duration must be greater than zero")
	}
	return total, FormatWindow(total), nil
}

// FormatWindow renders d with week, day, hour, minute and second tokens.
func FormatWindow(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	var b strings.Builder
	for _, u := range units {
		if d < u.value {
			continue
		}
		count := d / u.value
		d -= count * u.value
		fmt.Fprintf(&b, "%d%s", count, u.label)
	}
	return b.String()
}

// Window is a closed time range ending at Until.
type Window struct {
	Since time.Time
	Until time.Time
	Label string
}

// Last returns the window of the given length ending at now.
func Last(input string, now time.Time) (Window, error) {
	d, label, err := ParseWindow(input)
	if err != nil {
		return Window{}, err
	}
	return Window{Since: now.Add(-d), Until: now, Label: label}, nil
}
