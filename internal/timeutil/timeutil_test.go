package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ClockTime
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "00:00:00", want: 0},
		{in: "22:00", want: 22 * 3600},
		{in: "08:30:15", want: 8*3600 + 30*60 + 15},
		{in: "23:59:59", want: 23*3600 + 59*60 + 59},
		{in: " 09:00 ", want: 9 * 3600},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:00:61", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "12", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			require.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestClockOf(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 22, 15, 30, 0, time.UTC)
	require.Equal(t, ClockTime(22*3600+15*60+30), ClockOf(ts))
}

func TestClockTimeString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "22:00:00", ClockTime(22*3600).String())
	require.Equal(t, "08:30:15", ClockTime(8*3600+30*60+15).String())
}

func TestBetweenSameDayWindow(t *testing.T) {
	t.Parallel()

	start := mustClock(t, "09:00")
	end := mustClock(t, "17:00")

	require.True(t, Between(mustClock(t, "09:00"), start, end))
	require.True(t, Between(mustClock(t, "12:00"), start, end))
	require.True(t, Between(mustClock(t, "17:00"), start, end))
	require.False(t, Between(mustClock(t, "08:59"), start, end))
	require.False(t, Between(mustClock(t, "17:01"), start, end))
}

func TestBetweenWrapsPastMidnight(t *testing.T) {
	t.Parallel()

	start := mustClock(t, "22:00")
	end := mustClock(t, "08:00")

	require.True(t, Between(mustClock(t, "23:30"), start, end))
	require.True(t, Between(mustClock(t, "02:00"), start, end))
	require.True(t, Between(mustClock(t, "22:00"), start, end))
	require.True(t, Between(mustClock(t, "08:00"), start, end))
	require.False(t, Between(mustClock(t, "12:00"), start, end))
	require.False(t, Between(mustClock(t, "21:59"), start, end))
}

func mustClock(t *testing.T, s string) ClockTime {
	t.Helper()
	c, err := ParseClock(s)
	require.NoError(t, err)
	return c
}
