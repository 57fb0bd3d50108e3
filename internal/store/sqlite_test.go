package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
)

func setupTestRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	repo, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleTask() domain.Task {
	return domain.Task{
		Name:     "Physics",
		Time:     "8:05",
		ClassID:  "555",
		Cookie:   "remember_student=abc",
		Location: domain.Location{Lat: "30.274084", Lng: "120.155070", Acc: "10"},
		Enabled:  true,
	}
}

func TestLoadDefaults(t *testing.T) {
	repo := setupTestRepo(t)

	snap, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Tasks) != 0 {
		t.Errorf("want no tasks, got %d", len(snap.Tasks))
	}
	want := domain.NotifierConfig{Enable: false, ToUser: "@all"}
	if snap.Notifier != want {
		t.Errorf("notifier = %+v, want %+v", snap.Notifier, want)
	}
}

func TestAddTaskAssignsIDAndNormalizes(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	added, err := repo.AddTask(ctx, sampleTask())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.ID == "" {
		t.Fatal("expected generated id")
	}
	if added.Time != "08:05" {
		t.Errorf("time = %q, want 08:05", added.Time)
	}

	got, err := repo.GetTask(ctx, added.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Physics" || got.Location.Lat != "30.274084" || !got.Enabled || got.Cookie != "remember_student=abc" {
		t.Errorf("stored task = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not stored")
	}
}

func TestAddTaskKeepsGivenID(t *testing.T) {
	repo := setupTestRepo(t)
	task := sampleTask()
	task.ID = "fixed-id"

	added, err := repo.AddTask(context.Background(), task)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.ID != "fixed-id" {
		t.Fatalf("id = %q", added.ID)
	}
}

func TestAddTaskRejectsInvalid(t *testing.T) {
	repo := setupTestRepo(t)
	task := sampleTask()
	task.Time = "25:00"
	if _, err := repo.AddTask(context.Background(), task); !errors.Is(err, domain.ErrInvalidTime) {
		t.Fatalf("want ErrInvalidTime, got %v", err)
	}
}

func TestUpdateTask(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	added, _ := repo.AddTask(ctx, sampleTask())

	added.Name = "Chemistry"
	added.Time = "09:30"
	added.Enabled = false
	if _, err := repo.UpdateTask(ctx, added); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := repo.GetTask(ctx, added.ID)
	if got.Name != "Chemistry" || got.Time != "09:30" || got.Enabled {
		t.Fatalf("updated task = %+v", got)
	}

	missing := sampleTask()
	missing.ID = "nope"
	if _, err := repo.UpdateTask(ctx, missing); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("want ErrTaskNotFound, got %v", err)
	}
}

func TestDeleteTask(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	added, _ := repo.AddTask(ctx, sampleTask())

	if err := repo.DeleteTask(ctx, added.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetTask(ctx, added.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("want ErrTaskNotFound after delete, got %v", err)
	}
	if err := repo.DeleteTask(ctx, added.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("want ErrTaskNotFound on second delete, got %v", err)
	}
}

func TestSetSession(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	added, _ := repo.AddTask(ctx, sampleTask())

	if err := repo.SetSession(ctx, added.ID, domain.Session{Cookie: "PHPSESSID=new"}); err != nil {
		t.Fatalf("set session: %v", err)
	}
	got, _ := repo.GetTask(ctx, added.ID)
	if got.Cookie != "PHPSESSID=new" || got.ClassID != "555" {
		t.Fatalf("after empty class id: %+v", got)
	}

	if err := repo.SetSession(ctx, added.ID, domain.Session{Cookie: "PHPSESSID=newer", ClassID: "777"}); err != nil {
		t.Fatalf("set session: %v", err)
	}
	got, _ = repo.GetTask(ctx, added.ID)
	if got.Cookie != "PHPSESSID=newer" || got.ClassID != "777" {
		t.Fatalf("after class id: %+v", got)
	}

	if err := repo.SetSession(ctx, "missing", domain.Session{}); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("want ErrTaskNotFound, got %v", err)
	}
}

func TestSetEnabled(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	added, _ := repo.AddTask(ctx, sampleTask())

	if err := repo.SetEnabled(ctx, added.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	got, _ := repo.GetTask(ctx, added.ID)
	if got.Enabled {
		t.Fatal("task still enabled")
	}
}

func TestListTasksOrdered(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	for _, tm := range []string{"10:00", "07:30", "09:15"} {
		task := sampleTask()
		task.Time = tm
		if _, err := repo.AddTask(ctx, task); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	tasks, err := repo.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 || tasks[0].Time != "07:30" || tasks[1].Time != "09:15" || tasks[2].Time != "10:00" {
		t.Fatalf("order = %+v", tasks)
	}
}

func TestSaveNotifier(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	cfg := domain.NotifierConfig{Enable: true, CorpID: "corp", Secret: "s", AgentID: "1000002", ToUser: "alice"}

	if err := repo.SaveNotifier(ctx, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Notifier != cfg {
		t.Fatalf("notifier = %+v, want %+v", snap.Notifier, cfg)
	}
}

func TestReplaceAll(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	old, _ := repo.AddTask(ctx, sampleTask())

	imported := sampleTask()
	imported.Name = "Imported"
	snap := domain.Snapshot{
		Tasks:    []domain.Task{imported},
		Notifier: domain.NotifierConfig{Enable: true, ToUser: "@all"},
	}
	if err := repo.ReplaceAll(ctx, snap); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, _ := repo.Load(ctx)
	if len(got.Tasks) != 1 || got.Tasks[0].Name != "Imported" || got.Tasks[0].ID == "" {
		t.Fatalf("tasks = %+v", got.Tasks)
	}
	if _, err := repo.GetTask(ctx, old.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatal("old task survived replace")
	}
	if !got.Notifier.Enable {
		t.Fatal("notifier not replaced")
	}
}

func TestReplaceAllInvalidLeavesDataUntouched(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	repo.AddTask(ctx, sampleTask())

	bad := sampleTask()
	bad.Name = ""
	if err := repo.ReplaceAll(ctx, domain.Snapshot{Tasks: []domain.Task{bad}}); !errors.Is(err, domain.ErrEmptyName) {
		t.Fatalf("want ErrEmptyName, got %v", err)
	}
	tasks, _ := repo.ListTasks(ctx)
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}
}
