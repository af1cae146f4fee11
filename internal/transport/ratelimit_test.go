package transport

import "testing"

func TestRateLimiter_AllowsWithinBurstThenRejects(t *testing.T) {
	rl := newRateLimiter()
	for i := 0; i < perClientBurst; i++ {
		if !rl.allow("1.2.3.4") {
			t.Fatalf("expected request %d within burst to be allowed", i)
		}
	}
	if rl.allow("1.2.3.4") {
		t.Error("expected request beyond burst to be rejected")
	}
}

func TestRateLimiter_TracksClientsIndependently(t *testing.T) {
	rl := newRateLimiter()
	for i := 0; i < perClientBurst; i++ {
		rl.allow("1.2.3.4")
	}
	if !rl.allow("5.6.7.8") {
		t.Error("expected a different client to have its own independent bucket")
	}
}
