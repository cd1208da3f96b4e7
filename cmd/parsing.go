package cmd

import (
	"fmt"
	"time"
)

// Accepted formats for --begin and --end, tried in order.
var dateTimeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseDateTime parses a --begin or --end value as UTC. An empty string gives nil.
func parseDateTime(flag, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateTimeFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --%s datetime %q (expected YYYY-MM-DD HH:MM:SS or RFC 3339)", flag, s)
}

// parseDuration parses a positive --window or --last value. An empty string gives 0.
//
// Examples of valid duration strings:
//   - "30m" (30 minutes)
//   - "2h" (2 hours)
//   - "1h30m" (1 hour and 30 minutes)
func parseDuration(flag, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s duration: %w", flag, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--%s duration must be positive, got: %s", flag, s)
	}
	return d, nil
}

// timeBounds combines --begin, --end, --window and --last into an optional
// [since, to] range. --last counts back from now and excludes the others;
// --window completes whichever of --begin and --end is missing.
func timeBounds(begin, end, window, last string, now time.Time) (since, to *time.Time, err error) {
	lastDur, err := parseDuration("last", last)
	if err != nil {
		return nil, nil, err
	}
	if lastDur > 0 {
		if begin != "" || end != "" || window != "" {
			return nil, nil, fmt.Errorf("--last cannot be combined with --begin, --end or --window")
		}
		s := now.UTC().Add(-lastDur)
		return &s, nil, nil
	}

	if begin != "" && end != "" && window != "" {
		return nil, nil, fmt.Errorf("--begin, --end, and --window cannot all be used together")
	}
	if since, err = parseDateTime("begin", begin); err != nil {
		return nil, nil, err
	}
	if to, err = parseDateTime("end", end); err != nil {
		return nil, nil, err
	}
	win, err := parseDuration("window", window)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case win == 0:
	case since != nil && to == nil:
		t := since.Add(win)
		to = &t
	case since == nil && to != nil:
		t := to.Add(-win)
		since = &t
	case since == nil && to == nil:
		return nil, nil, fmt.Errorf("--window needs --begin or --end")
	}

	if since != nil && to != nil && to.Before(*since) {
		return nil, nil, fmt.Errorf("--end %s is before --begin %s", to.Format(time.RFC3339), since.Format(time.RFC3339))
	}
	return since, to, nil
}
