// Package executor runs one check-in task: list open check-ins, submit each
// with a jittered location and report every outcome.
package executor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/notify"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/portal"
)

// Portal is the part of portal.Client the executor drives.
type Portal interface {
	Headers(s domain.Session) http.Header
	Opportunities(ctx context.Context, h http.Header, classID string) ([]string, error)
	SignIn(ctx context.Context, h http.Header, classID, opportunityID string, at portal.Coord) (string, error)
	Jitter(loc domain.Location) portal.Coord
}

// Pacing bounds between two submissions of the same task.
const (
	minPause = 1 * time.Second
	maxPause = 5 * time.Second
)

// Outcome is the result of one submission.
type Outcome struct {
	OpportunityID string
	Success       bool
	Message       string
	Coord         portal.Coord
	Title         string
}

type Executor struct {
	portal Portal
	log    *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	random func() float64
}

type Option func(*Executor)

// WithSleep replaces the pause between submissions.
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = f }
}

// WithRandom replaces the uniform [0,1) source used for pacing.
func WithRandom(f func() float64) Option {
	return func(e *Executor) { e.random = f }
}

func New(p Portal, log *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		portal: p,
		log:    log,
		sleep:  sleepCtx,
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResultTitle heads notifications for accepted or explicitly errored runs.
func ResultTitle(name string) string { return name + " Check-in Result" }

// FailedTitle heads every other notification.
func FailedTitle(name string) string { return name + " Check-in Failed" }

// Execute runs task once and notifies n about every submission. Check-ins
// are submitted one after another with a random pause before each. A failed
// submission or notification never stops the remaining check-ins.
func (e *Executor) Execute(ctx context.Context, task domain.Task, n notify.Notifier) []Outcome {
	if !task.Enabled {
		return nil
	}
	log := e.log.With(zap.String("task", task.Name), zap.String("task_id", task.ID))
	log.Info("starting task")

	h := e.portal.Headers(task.Session())
	ids, err := e.portal.Opportunities(ctx, h, task.ClassID)
	if err != nil {
		log.Error("list check-ins failed", zap.Error(err))
		return nil
	}
	if len(ids) == 0 {
		log.Info("no open check-ins")
		return nil
	}

	outcomes := make([]Outcome, 0, len(ids))
	for _, id := range ids {
		if err := e.sleep(ctx, e.pause()); err != nil {
			log.Warn("task interrupted", zap.Error(err))
			break
		}

		at := e.portal.Jitter(task.Location)
		msg, err := e.portal.SignIn(ctx, h, task.ClassID, id, at)
		out := Outcome{OpportunityID: id, Success: err == nil, Message: msg, Coord: at}
		if err != nil {
			out.Message = err.Error()
		}

		line := fmt.Sprintf("Task [%s] Result: %s (Loc: %s,%s)", task.Name, out.Message, at.Lat, at.Lng)
		log.Info(line, zap.String("opportunity", id), zap.Bool("success", out.Success))

		out.Title = titleFor(task.Name, out)
		if err := n.Notify(ctx, out.Title, line); err != nil {
			log.Warn("notification failed", zap.String("opportunity", id), zap.Error(err))
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func titleFor(name string, out Outcome) string {
	if out.Success || strings.Contains(out.Message, "出错") || strings.Contains(out.Message, "Error") {
		return ResultTitle(name)
	}
	return FailedTitle(name)
}

func (e *Executor) pause() time.Duration {
	return minPause + time.Duration(e.random()*float64(maxPause-minPause))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
