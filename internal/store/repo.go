package store

import (
	"context"
	"errors"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
)

// ErrTaskNotFound is returned when no task has the given id.
var ErrTaskNotFound = errors.New("task not found")

// Repo defines the configuration store: tasks plus notifier settings.
type Repo interface {
	// Load returns a consistent copy of the whole configuration.
	Load(ctx context.Context) (domain.Snapshot, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	// AddTask stores t, assigning a fresh id when t.ID is empty.
	AddTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	SetSession(ctx context.Context, id string, s domain.Session) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	SaveNotifier(ctx context.Context, cfg domain.NotifierConfig) error
	// ReplaceAll overwrites every task and the notifier settings.
	ReplaceAll(ctx context.Context, snap domain.Snapshot) error
	Close() error
}
