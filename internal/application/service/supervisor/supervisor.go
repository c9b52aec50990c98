package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"main/internal/config"
	"main/internal/domain/interfaces"
	"main/internal/retry"
)

const (
	tickPeriod      = 2 * time.Second
	restartDebounce = 3 * time.Second
	stopTimeout     = 10 * time.Second

	dateLayout = "2006-01-02"
)

// RunFunc is one supervised pipeline instance, run until its context is
// cancelled.
type RunFunc func(ctx context.Context) error

// Pusher triggers the external daily export task.
type Pusher interface {
	Push(ctx context.Context) error
}

// State reports which side of the maintenance window the supervisor is on.
type State string

const (
	StateActive      State = "active"
	StateMaintenance State = "maintenance"
)

// Status is a point-in-time snapshot for the operational API.
type Status struct {
	State       State     `json:"state"`
	Running     bool      `json:"running"`
	RunID       string    `json:"run_id,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	LastPushed  string    `json:"last_pushed,omitempty"`
	LastCleaned string    `json:"last_cleaned,omitempty"`
}

type handle struct {
	id        uuid.UUID
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
}

// Supervisor decides once per tick whether the process is inside the daily
// maintenance window. Outside it keeps exactly one pipeline instance running;
// inside it stops the pipeline and triggers the daily push and clean tasks,
// each at most once per calendar UTC day.
type Supervisor struct {
	run     RunFunc
	cleaner interfaces.Maintenance
	pusher  Pusher
	window  config.MaintenanceConfig
	logger  *logrus.Entry

	tick     time.Duration
	debounce time.Duration
	stopWait time.Duration
	now      func() time.Time

	mu          sync.Mutex
	handle      *handle
	state       State
	lastStart   time.Time
	lastPushed  string
	lastCleaned string
}

func New(run RunFunc, cleaner interfaces.Maintenance, pusher Pusher, window config.MaintenanceConfig, logger *logrus.Logger) *Supervisor {
	return &Supervisor{
		run:      run,
		cleaner:  cleaner,
		pusher:   pusher,
		window:   window,
		logger:   logger.WithField("component", "supervisor"),
		tick:     tickPeriod,
		debounce: restartDebounce,
		stopWait: stopTimeout,
		now:      time.Now,
		state:    StateActive,
	}
}

// Run drives the tick loop until ctx is cancelled, then propagates a bounded
// cooperative stop to the supervised pipeline. The end-of-tick sleep is
// period minus elapsed, clamped to zero, so ticks do not drift.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor started")
	for {
		tickStart := time.Now()
		s.step(ctx, s.now())
		if err := retry.Sleep(ctx, s.tick-time.Since(tickStart)); err != nil {
			s.logger.Info("shutdown requested")
			s.stop()
			return err
		}
	}
}

// Status snapshots the supervisor state for the operational API.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:       s.state,
		LastPushed:  s.lastPushed,
		LastCleaned: s.lastCleaned,
	}
	if h := s.handle; h != nil {
		select {
		case <-h.done:
		default:
			st.Running = true
			st.RunID = h.id.String()
			st.StartedAt = h.startedAt
		}
	}
	return st
}

func (s *Supervisor) step(ctx context.Context, now time.Time) {
	today := now.UTC().Format(dateLayout)

	if !s.inWindow(now) {
		s.setState(StateActive)
		if !s.running() {
			s.start(ctx, now)
		}
		return
	}

	s.setState(StateMaintenance)
	if s.running() {
		s.stop()
	}
	if s.beforeClean(now) {
		if s.takeDay(&s.lastPushed, today) {
			s.runPush(ctx)
		}
	} else {
		if s.takeDay(&s.lastCleaned, today) {
			s.runClean(ctx)
		}
	}
}

func (s *Supervisor) inWindow(now time.Time) bool {
	offset := dayOffset(now)
	return offset >= s.window.WindowStart && offset < s.window.WindowEnd
}

func (s *Supervisor) beforeClean(now time.Time) bool {
	return dayOffset(now) < s.window.CleanAt
}

func dayOffset(now time.Time) time.Duration {
	t := now.UTC()
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// takeDay marks a daily task as done for today and reports whether it still
// had to run.
func (s *Supervisor) takeDay(day *string, today string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *day == today {
		return false
	}
	*day = today
	return true
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return false
	}
	select {
	case <-s.handle.done:
		s.handle = nil
		return false
	default:
		return true
	}
}

// start launches a pipeline instance unless a start happened less than the
// debounce interval ago.
func (s *Supervisor) start(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if !s.lastStart.IsZero() && now.Sub(s.lastStart) < s.debounce {
		s.mu.Unlock()
		s.logger.Debug("pipeline start debounced")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &handle{
		id:        uuid.New(),
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: now,
	}
	s.handle = h
	s.lastStart = now
	s.mu.Unlock()

	log := s.logger.WithField("run_id", h.id)
	go func() {
		defer close(h.done)
		if err := s.run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("pipeline exited with error")
		}
	}()
	log.Info("pipeline started")
}

// stop cancels the pipeline and waits up to stopWait for it to exit. A task
// that does not exit in time is abandoned, not killed: pipeline tasks are
// cooperative and check cancellation at every suspend point.
func (s *Supervisor) stop() {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()
	if h == nil {
		return
	}

	log := s.logger.WithField("run_id", h.id)
	log.Info("stopping pipeline")
	h.cancel()

	timer := time.NewTimer(s.stopWait)
	defer timer.Stop()
	select {
	case <-h.done:
		log.Info("pipeline stopped")
	case <-timer.C:
		log.WithField("timeout", s.stopWait.String()).Warn("pipeline did not stop in time, abandoning wait")
	}
}

func (s *Supervisor) runPush(ctx context.Context) {
	if s.pusher == nil {
		return
	}
	s.logger.Info("launching daily export push")
	if err := s.pusher.Push(ctx); err != nil {
		// Failure is logged, not retried until the next day.
		s.logger.WithError(err).Error("export push failed")
		return
	}
	s.logger.Info("export push completed")
}

func (s *Supervisor) runClean(ctx context.Context) {
	s.logger.Info("maintenance starting")
	if err := s.cleaner.RunMaintenance(ctx); err != nil {
		s.logger.WithError(err).Error("maintenance failed")
		return
	}
	s.logger.Info("maintenance completed")
}
