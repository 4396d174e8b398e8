package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func session() Session {
	open := time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC)
	return Session{Open: open, Close: open.Add(390 * time.Minute)} // 16:00
}

func TestWindowBoundaries(t *testing.T) {
	s := session()
	cases := []struct {
		name   string
		offset time.Duration
		want   Window
	}{
		{"at open", 0, WarmUp},
		{"just before minute 15", 14*time.Minute + 59*time.Second, WarmUp},
		{"minute 15 starts entry", 15 * time.Minute, Entry},
		{"minute 59 still entry", 59 * time.Minute, Entry},
		{"minute 60 starts hold", 60 * time.Minute, HoldExit},
		{"mid session", 3 * time.Hour, HoldExit},
		{"16 minutes before close", 390*time.Minute - 16*time.Minute - time.Second, HoldExit},
		{"15 minutes before close", 375 * time.Minute, CloseOut},
		{"at close", 390 * time.Minute, CloseOut},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := s.WindowAt(s.Open.Add(tc.offset))
			require.Equal(t, tc.want, got)
		})
	}
}

func TestWindowsAreExhaustive(t *testing.T) {
	s := session()
	for m := 0; m <= 390; m++ {
		w := s.WindowAt(s.Open.Add(time.Duration(m) * time.Minute))
		require.Contains(t, []Window{WarmUp, Entry, HoldExit, CloseOut}, w)
	}
}

func TestEntryCutoff(t *testing.T) {
	s := session()
	require.Equal(t, s.Open.Add(15*time.Minute), s.EntryCutoff())
}
