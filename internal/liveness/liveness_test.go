package liveness

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestProbeSuccess(t *testing.T) {
	err := Probe(context.Background(), "db", func(context.Context) error { return nil }, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProbeFailureIsConnectionLost(t *testing.T) {
	cause := errors.New("refused")
	err := Probe(context.Background(), "redis", func(context.Context) error { return cause }, time.Second)
	if !IsConnectionLost(err) {
		t.Fatalf("want connection lost, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not preserved: %v", err)
	}
	var cl *ConnectionLostError
	if !errors.As(err, &cl) || cl.Store != "redis" {
		t.Fatalf("want *ConnectionLostError for redis, got %#v", err)
	}
}

func TestProbeTimesOutOnHungDriver(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	hung := func(context.Context) error {
		<-release // ignores its context
		return nil
	}

	start := time.Now()
	err := Probe(context.Background(), "db", hung, 50*time.Millisecond)
	if !IsConnectionLost(err) {
		t.Fatalf("want connection lost, got %v", err)
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("probe took %s", took)
	}
}

func TestProbeParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Probe(ctx, "db", func(c context.Context) error { <-c.Done(); return c.Err() }, time.Second)
	if IsConnectionLost(err) {
		t.Fatalf("cancellation must not count as a lost connection")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestMonitorReportsLossAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	ping := func(context.Context) error {
		if calls.Add(1) == 1 {
			return nil
		}
		return errors.New("down")
	}
	m := NewMonitor("db", ping, MonitorOptions{Interval: 5 * time.Millisecond, Timeout: 50 * time.Millisecond, Failures: 2}, nil)

	done := make(chan error, 1)
	go func() { done <- m.Watch(context.Background()) }()

	select {
	case err := <-done:
		if !IsConnectionLost(err) {
			t.Fatalf("want connection lost, got %v", err)
		}
		if n := calls.Load(); n != 3 {
			t.Fatalf("want 3 pings (1 ok, 2 failed), got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not report loss")
	}
}

func TestMonitorStopsWithContext(t *testing.T) {
	m := NewMonitor("db", func(context.Context) error { return nil }, MonitorOptions{Interval: time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("want nil on shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("monitor ignored cancellation")
	}
}

func TestNudgeTriggersImmediatePing(t *testing.T) {
	pinged := make(chan struct{}, 1)
	ping := func(context.Context) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	}
	m := NewMonitor("redis", ping, MonitorOptions{Interval: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx)

	m.Nudge()
	m.Nudge() // never blocks

	select {
	case <-pinged:
	case <-time.After(time.Second):
		t.Fatal("nudge did not trigger a ping")
	}
}
