package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/executor"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/notify"
)

// Loader returns the current configuration. It is read once per tick.
type Loader interface {
	Load(ctx context.Context) (domain.Snapshot, error)
}

// Runner executes one task. executor.Executor implements it.
type Runner interface {
	Execute(ctx context.Context, task domain.Task, n notify.Notifier) []executor.Outcome
}

// NotifierFactory builds the notification channels from a tick's snapshot.
type NotifierFactory func(cfg domain.NotifierConfig) notify.Notifier

// tickSlack places aligned ticks just past the minute boundary.
const tickSlack = 50 * time.Millisecond

// Scheduler fires tasks whose trigger time equals the current minute. Each
// task fires at most once per minute however often Tick runs.
type Scheduler struct {
	loader    Loader
	runner    Runner
	notifiers NotifierFactory
	log       *zap.Logger
	interval  time.Duration
	now       func() time.Time

	mu     sync.Mutex
	minute time.Time           // minute the fired set belongs to
	fired  map[string]struct{} // task ids launched during minute

	inflight sync.WaitGroup
}

type Option func(*Scheduler)

// WithInterval sets the tick period (default one minute).
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces the wall clock used for matching.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(loader Loader, runner Runner, notifiers NotifierFactory, log *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		loader:    loader,
		runner:    runner,
		notifiers: notifiers,
		log:       log,
		interval:  time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks immediately and then every interval until ctx is canceled. A
// tick only launches its tasks; it never waits for them. On shutdown Run
// waits for launched tasks to return.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started", zap.Duration("interval", s.interval))

	s.track(s.Tick(ctx))
	timer := time.NewTimer(s.wait())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			s.inflight.Wait()
			return
		case <-timer.C:
			s.track(s.Tick(ctx))
			timer.Reset(s.wait())
		}
	}
}

// wait returns the delay before the next tick. The default one-minute
// interval follows the wall clock so every minute is visited exactly once.
func (s *Scheduler) wait() time.Duration {
	if s.interval != time.Minute {
		return s.interval
	}
	now := s.now()
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now) + tickSlack
}

// claim drops tasks that already fired during now's minute and records the
// rest as fired.
func (s *Scheduler) claim(now time.Time, due []domain.Task) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if minute := now.Truncate(time.Minute); !minute.Equal(s.minute) || s.fired == nil {
		s.minute = minute
		s.fired = make(map[string]struct{})
	}
	var fresh []domain.Task
	for _, t := range due {
		if _, done := s.fired[t.ID]; done {
			continue
		}
		s.fired[t.ID] = struct{}{}
		fresh = append(fresh, t)
	}
	return fresh
}

func (s *Scheduler) track(b *Batch) {
	if b == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		b.Wait()
	}()
}

// Batch is the set of task runs launched by one tick.
type Batch struct {
	Tasks []domain.Task
	group errgroup.Group
}

// Wait blocks until every task of the batch has returned.
func (b *Batch) Wait() {
	if b == nil {
		return
	}
	_ = b.group.Wait()
}

// Tick performs one scheduling cycle: take a fresh snapshot, match due
// tasks and launch each on its own goroutine. It returns nil when nothing
// is due.
func (s *Scheduler) Tick(ctx context.Context) *Batch {
	now := s.now()
	snap, err := s.loader.Load(ctx)
	if err != nil {
		s.log.Error("load config failed", zap.Error(err))
		return nil
	}

	due := s.claim(now, domain.Due(now, snap.Tasks))
	s.log.Info("scheduler tick", zap.String("time", domain.ClockOf(now)), zap.Int("due", len(due)))
	if len(due) == 0 {
		return nil
	}

	n := s.notifiers(snap.Notifier)
	b := &Batch{Tasks: due}
	for _, task := range due {
		b.group.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("task panicked", zap.String("task", task.Name), zap.Any("panic", r))
					err = fmt.Errorf("task %s panicked: %v", task.ID, r)
				}
			}()
			s.runner.Execute(ctx, task, n)
			return nil
		})
	}
	return b
}
