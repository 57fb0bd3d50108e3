package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

var _ Repo = (*SQLiteRepo)(nil)

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const taskColumns = `id, name, time, class_id, cookie, lat, lng, acc, enabled, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (domain.Task, error) {
	var (
		t          domain.Task
		enabledInt int
		createdAt  int64
	)
	if err := s.Scan(
		&t.ID, &t.Name, &t.Time, &t.ClassID, &t.Cookie,
		&t.Location.Lat, &t.Location.Lng, &t.Location.Acc,
		&enabledInt, &createdAt,
	); err != nil {
		return domain.Task{}, err
	}
	t.Enabled = enabledInt != 0
	t.CreatedAt = fromUnix(createdAt)
	return t, nil
}

func listTasks(ctx context.Context, q queryer) ([]domain.Task, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		ORDER BY time ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func loadNotifier(ctx context.Context, q queryer) (domain.NotifierConfig, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM settings WHERE key LIKE 'wecom.%'`)
	if err != nil {
		return domain.NotifierConfig{}, err
	}
	defer rows.Close()

	cfg := domain.DefaultNotifierConfig()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return domain.NotifierConfig{}, err
		}
		switch k {
		case keyWeComEnable:
			cfg.Enable = parseBool(v)
		case keyWeComCorpID:
			cfg.CorpID = v
		case keyWeComSecret:
			cfg.Secret = v
		case keyWeComAgentID:
			cfg.AgentID = v
		case keyWeComToUser:
			cfg.ToUser = v
		}
	}
	return cfg, rows.Err()
}

// Load returns every task and the notifier settings read in one transaction.
func (r *SQLiteRepo) Load(ctx context.Context) (domain.Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer func() { _ = tx.Rollback() }()

	tasks, err := listTasks(ctx, tx)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("list tasks: %w", err)
	}
	cfg, err := loadNotifier(ctx, tx)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load notifier: %w", err)
	}
	return domain.Snapshot{Tasks: tasks, Notifier: cfg}, nil
}

// ListTasks returns all tasks ordered by trigger time, then name.
func (r *SQLiteRepo) ListTasks(ctx context.Context) ([]domain.Task, error) {
	return listTasks(ctx, r.db)
}

// GetTask returns the task with the given id or ErrTaskNotFound.
func (r *SQLiteRepo) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AddTask validates and inserts t. An empty id gets a fresh UUID.
func (r *SQLiteRepo) AddTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	t, err := domain.ValidateTask(t)
	if err != nil {
		return domain.Task{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if err := insertTask(ctx, r.db, t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func insertTask(ctx context.Context, q queryer, t domain.Task) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Time, t.ClassID, t.Cookie,
		t.Location.Lat, t.Location.Lng, t.Location.Acc,
		boolToInt(t.Enabled), toUnix(t.CreatedAt),
	)
	return err
}

// UpdateTask replaces the task with the same id. Last write wins.
func (r *SQLiteRepo) UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	t, err := domain.ValidateTask(t)
	if err != nil {
		return domain.Task{}, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET name = ?, time = ?, class_id = ?, cookie = ?,
		    lat = ?, lng = ?, acc = ?, enabled = ?
		WHERE id = ?`,
		t.Name, t.Time, t.ClassID, t.Cookie,
		t.Location.Lat, t.Location.Lng, t.Location.Acc, boolToInt(t.Enabled),
		t.ID,
	)
	if err := mustAffect(res, err); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// DeleteTask removes the task with the given id.
func (r *SQLiteRepo) DeleteTask(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return mustAffect(res, err)
}

// SetSession binds a login result to a task. An empty class id keeps the
// task's current course.
func (r *SQLiteRepo) SetSession(ctx context.Context, id string, s domain.Session) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET cookie = ?, class_id = COALESCE(NULLIF(?, ''), class_id)
		WHERE id = ?`,
		s.Cookie, s.ClassID, id,
	)
	return mustAffect(res, err)
}

// SetEnabled toggles the enabled flag for a task.
func (r *SQLiteRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	return mustAffect(res, err)
}

// SaveNotifier stores the WeCom settings.
func (r *SQLiteRepo) SaveNotifier(ctx context.Context, cfg domain.NotifierConfig) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := saveNotifier(ctx, tx, cfg); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func saveNotifier(ctx context.Context, q queryer, cfg domain.NotifierConfig) error {
	values := map[string]string{
		keyWeComEnable:  fmt.Sprint(cfg.Enable),
		keyWeComCorpID:  cfg.CorpID,
		keyWeComSecret:  cfg.Secret,
		keyWeComAgentID: cfg.AgentID,
		keyWeComToUser:  cfg.ToUser,
	}
	for k, v := range values {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("save %s: %w", k, err)
		}
	}
	return nil
}

// ReplaceAll overwrites the whole configuration in one transaction.
func (r *SQLiteRepo) ReplaceAll(ctx context.Context, snap domain.Snapshot) error {
	tasks := make([]domain.Task, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		v, err := domain.ValidateTask(t)
		if err != nil {
			return fmt.Errorf("task %q: %w", t.Name, err)
		}
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		tasks = append(tasks, v)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return err
	}
	for _, t := range tasks {
		if err := insertTask(ctx, tx, t); err != nil {
			return fmt.Errorf("insert %s: %w", t.ID, err)
		}
	}
	if err := saveNotifier(ctx, tx, snap.Notifier); err != nil {
		return err
	}
	return tx.Commit()
}

func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}
