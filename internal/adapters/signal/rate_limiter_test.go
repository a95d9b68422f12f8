package signal

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("c") || !rl.Allow("c") {
		t.Fatal("first two must pass")
	}
	if rl.Allow("c") {
		t.Fatal("third in window must be refused")
	}
	if !rl.Allow("other") {
		t.Fatal("limits are per connection")
	}

	now = now.Add(1500 * time.Millisecond)
	if !rl.Allow("c") {
		t.Fatal("window slid, must pass")
	}

	rl.Forget("c")
	if _, ok := rl.history["c"]; ok {
		t.Fatal("forget kept history")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Second)
	if rl != nil {
		t.Fatal("zero limit must disable")
	}
	for i := 0; i < 100; i++ {
		if !rl.Allow("c") {
			t.Fatal("nil limiter must allow")
		}
	}
	rl.Forget("c")
}
