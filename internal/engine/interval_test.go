package engine

import (
	"testing"
	"time"
)

func TestAdaptiveRemoteInterval(t *testing.T) {
	cases := []struct {
		hosts int
		want  time.Duration
	}{
		{1, 2 * time.Second},
		{10, 2 * time.Second},
		{11, 3 * time.Second},
		{50, 3 * time.Second},
		{51, 4 * time.Second},
		{100, 4 * time.Second},
		{101, 6 * time.Second},
	}
	for _, c := range cases {
		if got := AdaptiveRemoteInterval(c.hosts); got != c.want {
			t.Errorf("AdaptiveRemoteInterval(%d) = %v, want %v", c.hosts, got, c.want)
		}
	}
}
