package transcribe

import (
	"sync/atomic"
	"testing"
	"time"
)

func testSilenceConfig() SilenceConfig {
	return SilenceConfig{Interval: time.Hour, Threshold: 15 * time.Second, Warmup: 10 * time.Second}
}

func TestSilenceMonitorFiresAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	buf := NewBuffer(clock.Now)

	var fired atomic.Int32
	mon := NewSilenceMonitor(buf, testSilenceConfig(), func() { fired.Add(1) })

	clock.Advance(14 * time.Second)
	if mon.Check() {
		t.Fatal("expected no check-in before threshold")
	}

	clock.Advance(time.Second)
	if !mon.Check() {
		t.Fatal("expected check-in at threshold")
	}
	if fired.Load() != 1 {
		t.Fatalf("expected 1 callback, got %d", fired.Load())
	}

	if mon.Check() {
		t.Fatal("expected speech clock reset to suppress immediate refire")
	}

	clock.Advance(15 * time.Second)
	if !mon.Check() {
		t.Fatal("expected check-in after another silent period")
	}
}

func TestSilenceMonitorSuppressedByPendingText(t *testing.T) {
	clock := newFakeClock()
	buf := NewBuffer(clock.Now)
	mon := NewSilenceMonitor(buf, testSilenceConfig(), nil)

	buf.Final("half an answer")
	clock.Advance(time.Minute)
	if mon.Check() {
		t.Fatal("expected no check-in while final text is pending")
	}

	buf.Boundary()
	buf.Interim("um")
	clock.Advance(time.Minute)
	if mon.Check() {
		t.Fatal("expected no check-in while interim text is pending")
	}
}

func TestSilenceMonitorWarmup(t *testing.T) {
	clock := newFakeClock()
	buf := NewBuffer(clock.Now)
	mon := NewSilenceMonitor(buf, SilenceConfig{Interval: time.Hour, Threshold: 2 * time.Second, Warmup: 10 * time.Second}, nil)

	clock.Advance(5 * time.Second)
	if mon.Check() {
		t.Fatal("expected warm-up to suppress check-in on a young buffer")
	}

	clock.Advance(5 * time.Second)
	if !mon.Check() {
		t.Fatal("expected check-in once the buffer is warm")
	}
}

func TestSilenceMonitorLoop(t *testing.T) {
	buf := NewBuffer(nil)
	done := make(chan struct{}, 1)
	mon := NewSilenceMonitor(buf, SilenceConfig{Interval: 5 * time.Millisecond, Threshold: time.Millisecond, Warmup: 0}, func() {
		select {
		case done <- struct{}{}:
		default:
		}
	})

	mon.Start()
	mon.Start()
	defer mon.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected monitor loop to fire")
	}

	mon.Stop()
	mon.Stop()
}
