package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeBounds(t *testing.T) {
	now := time.Date(2025, 10, 27, 12, 0, 0, 0, time.UTC)
	at := func(s string) *time.Time {
		ts, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return &ts
	}

	tests := []struct {
		name                     string
		begin, end, window, last string
		since, to                *time.Time
	}{
		{name: "none"},
		{name: "last", last: "2h", since: at("2025-10-27T10:00:00Z")},
		{name: "begin", begin: "2025-10-27 10:00", since: at("2025-10-27T10:00:00Z")},
		{name: "date only", end: "2025-10-27", to: at("2025-10-27T00:00:00Z")},
		{name: "rfc3339 offset", begin: "2025-10-27T10:00:00+02:00", since: at("2025-10-27T08:00:00Z")},
		{name: "begin and window", begin: "2025-10-27 10:00:00", window: "30m", since: at("2025-10-27T10:00:00Z"), to: at("2025-10-27T10:30:00Z")},
		{name: "end and window", end: "2025-10-27 10:00:00", window: "1h30m", since: at("2025-10-27T08:30:00Z"), to: at("2025-10-27T10:00:00Z")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			since, to, err := timeBounds(tt.begin, tt.end, tt.window, tt.last, now)
			require.NoError(t, err)
			assert.Equal(t, stamp(tt.since), stamp(since))
			assert.Equal(t, stamp(tt.to), stamp(to))
		})
	}
}

func stamp(t *time.Time) string {
	if t == nil {
		return "<nil>"
	}
	return t.Format(time.RFC3339Nano)
}

func TestTimeBoundsErrors(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name                     string
		begin, end, window, last string
		want                     string
	}{
		{"last with begin", "2025-10-27", "", "", "1h", "--last cannot be combined"},
		{"all three", "2025-10-27", "2025-10-28", "1h", "", "cannot all be used together"},
		{"window alone", "", "", "1h", "", "--window needs --begin or --end"},
		{"reversed", "2025-10-28", "2025-10-27", "", "", "is before --begin"},
		{"bad date", "27/10/2025", "", "", "", "invalid --begin datetime"},
		{"bad duration", "", "", "", "soon", "invalid --last duration"},
		{"negative duration", "2025-10-27", "", "-5m", "", "must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := timeBounds(tt.begin, tt.end, tt.window, tt.last, now)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
