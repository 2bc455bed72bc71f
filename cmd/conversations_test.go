package cmd

import (
	"testing"
	"time"
)

func TestFormatWhen(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, "-"},
		{"seconds ago", now.Add(-20 * time.Second), "just now"},
		{"minutes ago", now.Add(-5 * time.Minute), "5m ago"},
		{"hours ago", now.Add(-3 * time.Hour), "3h ago"},
		{"days ago", now.Add(-72 * time.Hour), now.Add(-72 * time.Hour).Format("2006-01-02")},
	}
	for _, tc := range cases {
		if got := formatWhen(tc.t); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}
