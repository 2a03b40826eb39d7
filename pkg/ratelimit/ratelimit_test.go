package ratelimit

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// fakeClock is advanced manually by tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// TestCheckAllowsMaxCalls verifies that exactly maxCalls invocations are
// permitted within one window and the next one is denied with a message.
func TestCheckAllowsMaxCalls(t *testing.T) {
	clk := newClock()
	l := New(WithClock(clk.Now))

	for i := 0; i < 3; i++ {
		if d := l.Check("gemini", 3, time.Minute); !d.Allowed {
			t.Fatalf("call %d denied", i+1)
		}
	}
	d := l.Check("gemini", 3, time.Minute)
	if d.Allowed {
		t.Fatal("fourth call should be denied")
	}
	if !strings.Contains(d.Message, "gemini") || !strings.Contains(d.Message, "60 seconds") {
		t.Errorf("unexpected message %q", d.Message)
	}
	if d.RetryAfter != time.Minute {
		t.Errorf("retry after %v", d.RetryAfter)
	}
}

// TestCheckResetsAfterWindow ensures the count starts over once the window
// length has elapsed since the first call.
func TestCheckResetsAfterWindow(t *testing.T) {
	clk := newClock()
	l := New(WithClock(clk.Now))

	l.Check("gemini", 1, time.Second)
	if d := l.Check("gemini", 1, time.Second); d.Allowed {
		t.Fatal("second call should be denied")
	}
	clk.Advance(400 * time.Millisecond)
	if d := l.Check("gemini", 1, time.Second); d.Allowed {
		t.Fatal("window has not expired yet")
	} else if !strings.Contains(d.Message, "1 seconds") {
		t.Errorf("wait should round up, got %q", d.Message)
	}
	clk.Advance(600 * time.Millisecond)
	if d := l.Check("gemini", 1, time.Second); !d.Allowed {
		t.Fatal("call after window should be allowed")
	}
	if w := l.Snapshot()["gemini"]; w.Count != 1 || !w.Start.Equal(clk.Now()) {
		t.Errorf("window not restarted: %+v", w)
	}
}

// TestCheckResourcesIndependent verifies resources do not share counters.
func TestCheckResourcesIndependent(t *testing.T) {
	l := New(WithClock(newClock().Now))
	l.Check("a", 1, time.Minute)
	if d := l.Check("b", 1, time.Minute); !d.Allowed {
		t.Fatal("resource b should have its own window")
	}
	l.Reset("a")
	if d := l.Check("a", 1, time.Minute); !d.Allowed {
		t.Fatal("reset should clear the window")
	}
}

// TestCheckConcurrent hammers a single resource from many goroutines and
// checks that no more than maxCalls are admitted.
func TestCheckConcurrent(t *testing.T) {
	l := New(WithClock(newClock().Now))
	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("gemini", 10, time.Minute).Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	if allowed != 10 {
		t.Fatalf("expected 10 allowed calls, got %d", allowed)
	}
}

// TestWindowNeverExceedsMax checks the limit property over random call
// schedules.
func TestWindowNeverExceedsMax(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clk := newClock()
		l := New(WithClock(clk.Now))
		maxCalls := rapid.IntRange(1, 10).Draw(t, "maxCalls")
		window := time.Duration(rapid.IntRange(10, 1000).Draw(t, "windowMs")) * time.Millisecond
		steps := rapid.SliceOfN(rapid.IntRange(0, 300), 1, 60).Draw(t, "gapsMs")

		var windowStart time.Time
		inWindow := 0
		for i, gap := range steps {
			clk.Advance(time.Duration(gap) * time.Millisecond)
			now := clk.Now()
			if i == 0 || now.Sub(windowStart) >= window {
				windowStart = now
				inWindow = 0
			}
			if l.Check("r", maxCalls, window).Allowed {
				inWindow++
			}
			if inWindow > maxCalls {
				t.Fatalf("allowed %d calls in a window of max %d", inWindow, maxCalls)
			}
		}
	})
}
