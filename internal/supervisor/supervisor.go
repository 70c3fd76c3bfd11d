// Package supervisor restarts the service when it loses a backing store.
package supervisor

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/anythought/internal/liveness"
	"github.com/iliyamo/anythought/internal/logging"
)

// Backoff is an exponential schedule with multiplicative jitter.  The
// jittered delay never exceeds Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64 // fraction of the delay, 0..1
}

func DefaultBackoff() Backoff {
	return Backoff{Initial: time.Second, Max: 8 * time.Second, Factor: 2, Jitter: 0.2}
}

// Delay returns the wait before retry number attempt (1-based), rounded to
// the millisecond.  r is a uniform sample from [0, 1).
func (b Backoff) Delay(attempt int, r float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Initial) * math.Pow(b.Factor, float64(attempt-1))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	d *= 1 - b.Jitter + 2*b.Jitter*r
	out := time.Duration(d).Round(time.Millisecond)
	if out > b.Max {
		out = b.Max
	}
	return out
}

// Launch runs one service instance until ctx is done or it fails.
type Launch func(ctx context.Context) error

type Supervisor struct {
	backoff Backoff
	log     logrus.FieldLogger
	sleep   func(ctx context.Context, d time.Duration) error
	rand    func() float64
}

func New(b Backoff, log logrus.FieldLogger) *Supervisor {
	return &Supervisor{
		backoff: b,
		log:     logging.Component(log, "supervisor"),
		sleep:   sleep,
		rand:    rand.Float64,
	}
}

// Run launches the service and relaunches it each time it ends with a
// lost connection.  Any other failure is returned.  Run returns nil once
// ctx is done.
func (s *Supervisor) Run(ctx context.Context, launch Launch) error {
	for attempt := 1; ; attempt++ {
		err := launch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil || !liveness.IsConnectionLost(err) {
			return err
		}
		delay := s.backoff.Delay(attempt, s.rand())
		s.log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Error("connection lost, restarting service")
		if err := s.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
