package clock

import (
	"testing"
	"time"
)

func TestFakeSleepAdvances(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	c := Fake(start)

	c.Sleep(20 * time.Second)
	c.Sleep(2 * time.Second)

	if got := c.Now(); !got.Equal(start.Add(22 * time.Second)) {
		t.Fatalf("Now = %v, want %v", got, start.Add(22*time.Second))
	}
	slept := c.Slept()
	if len(slept) != 2 || slept[0] != 20*time.Second || slept[1] != 2*time.Second {
		t.Fatalf("Slept = %v", slept)
	}
}

func TestFakeTickerFiresOnAdvance(t *testing.T) {
	t.Parallel()
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tk := c.NewTicker(time.Second)
	defer tk.Stop()

	c.Advance(500 * time.Millisecond)
	select {
	case <-tk.C:
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case <-tk.C:
	default:
		t.Fatal("ticker did not fire after interval")
	}

	// A large jump coalesces into one pending tick.
	c.Advance(5 * time.Second)
	<-tk.C
	select {
	case <-tk.C:
		t.Fatal("expected coalesced tick")
	default:
	}
}

func TestFakeTickerStop(t *testing.T) {
	t.Parallel()
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tk := c.NewTicker(time.Second)
	tk.Stop()
	c.Advance(2 * time.Second)
	select {
	case <-tk.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}
