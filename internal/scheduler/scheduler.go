// Package scheduler drives the periodic maintenance work: the realtime
// rate tick, the auto-save sweep and capture housekeeping. Each job runs
// on its own ticker goroutine; runs of one job never overlap.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/log"
)

const stopTimeout = 5 * time.Second

// Job is one periodic task. The tick time is passed in so jobs share
// the scheduler's notion of now.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(now time.Time)
}

type Scheduler struct {
	jobs []Job
	log  log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Scheduler{log: logger}
}

// Add registers a job. All jobs must be added before Start.
func (s *Scheduler) Add(name string, interval time.Duration, run func(now time.Time)) {
	s.jobs = append(s.jobs, Job{Name: name, Interval: interval, Run: run})
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.runJob(ctx, j)
	}
	s.log.Debugf("scheduler started with %d jobs", len(s.jobs))
}

func (s *Scheduler) runJob(ctx context.Context, j Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			j.Run(now)
		}
	}
}

// Stop cancels all jobs and waits for in-flight runs for a bounded
// time. Safe to call without Start.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		s.log.Warnf("scheduler jobs still running after %s, abandoning", stopTimeout)
	}
}
