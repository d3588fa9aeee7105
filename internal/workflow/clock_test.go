package workflow

import (
	"context"
	"testing"
	"time"
)

func TestSleepAdvancesInChunks(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	if !sleep(context.Background(), clock, 25*time.Second, 10*time.Second, nil) {
		t.Fatal("expected sleep to complete")
	}
	if got := clock.Now().Sub(start); got != 25*time.Second {
		t.Fatalf("clock advanced %s, want 25s", got)
	}
}

func TestSleepReturnsEarlyOnWake(t *testing.T) {
	wake := make(chan struct{}, 1)
	wake <- struct{}{}
	if !sleep(context.Background(), realClock{}, time.Hour, time.Hour, wake) {
		t.Fatal("expected wake to end the sleep")
	}
}

func TestSleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleep(ctx, realClock{}, time.Hour, time.Second, nil) {
		t.Fatal("expected cancelled sleep to report false")
	}
}
