/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package scheduler runs the background expiry sweep: a fixed-interval
// tick that calls ProposalManager.ExpireStale, the same periodic
// reconciliation shape used for background state cleanup rather than
// waiting purely on request-triggered events.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/log"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/metrics"
)

// Expirer is the subset of proposal.Manager the sweep loop needs.
type Expirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// Sweeper runs ExpireStale on a fixed interval until stopped.
type Sweeper struct {
	Expirer  Expirer
	Interval time.Duration

	cronSched *cron.Cron
	stop      chan struct{}
	done      chan struct{}
}

// New constructs a Sweeper with the given interval (60s if non-positive).
func New(expirer Expirer, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Sweeper{Expirer: expirer, Interval: interval, stop: make(chan struct{}), done: make(chan struct{})}
}

// Run blocks, ticking every Interval until ctx is cancelled or Stop is
// called. It is meant to be launched in its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	start := time.Now()
	expired, err := s.Expirer.ExpireStale(ctx, start)
	duration := time.Since(start)
	metrics.SweepDuration.Observe(duration.Seconds())
	metrics.SweepTotal.Inc()
	if err != nil {
		metrics.SweepErrorsTotal.Inc()
		log.FromContext(ctx).Error(err, "expiry sweep failed")
		return
	}
	metrics.ProposalsExpiredTotal.Add(float64(expired))
	log.FromContext(ctx).V(1).Info("expiry sweep complete", "expired", expired, "durationMS", duration.Milliseconds())
}

// Stop signals Run to exit after its current tick and waits for it to
// return.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
	if s.cronSched != nil {
		s.cronSched.Stop()
	}
}

// RunCron is an alternative entrypoint for operators who want cron-style
// scheduling (e.g. skip sweeps outside business hours) instead of a flat
// interval, built on the same Expirer seam as Run.
func (s *Sweeper) RunCron(ctx context.Context, spec string) error {
	s.cronSched = cron.New()
	_, err := s.cronSched.AddFunc(spec, func() { s.sweepOnce(ctx) })
	if err != nil {
		return err
	}
	s.cronSched.Start()
	<-ctx.Done()
	s.cronSched.Stop()
	return nil
}
