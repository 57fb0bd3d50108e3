package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
)

// execute runs the CLI against a temp database and returns stdout.
func execute(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--db", db}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestTaskLifecycle(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	out, err := execute(t, db, "task", "add", "--name", "Physics", "--time", "8:05", "--class", "555", "--lat", "30.1", "--lng", "120.2")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	m := regexp.MustCompile(`task added: (\S+) \(Physics at 08:05\)`).FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("add output = %q", out)
	}
	id := m[1]

	if _, err := execute(t, db, "task", "update", id, "--time", "09:30", "--disabled"); err != nil {
		t.Fatalf("update: %v", err)
	}
	out, err = execute(t, db, "task", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "09:30") || !strings.Contains(out, "false") {
		t.Fatalf("list output = %q", out)
	}

	if _, err := execute(t, db, "task", "enable", id); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if _, err := execute(t, db, "task", "delete", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := execute(t, db, "task", "delete", id); err == nil {
		t.Fatal("second delete succeeded")
	}
}

func TestTaskAddValidation(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")
	if _, err := execute(t, db, "task", "add", "--name", "Physics", "--time", "25:00", "--class", "555"); err == nil {
		t.Fatal("invalid time accepted")
	}
}

func TestConfigExportImport(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "cli.db")
	doc := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(doc, []byte(`
tasks:
  - name: Chemistry
    time: "7:45"
    class_id: "888"
    cookie: PHPSESSID=abc
    location: {lat: "30.5", lng: "114.3", acc: "10"}
    enable: true
wecom:
  enable: true
  corpid: corp
  secret: s3cret
  agentid: "1000002"
`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, db, "config", "import", doc); err != nil {
		t.Fatalf("import: %v", err)
	}

	out, err := execute(t, db, "config", "export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	snap, err := decodeSnapshot(strings.NewReader(out))
	if err != nil {
		t.Fatalf("decode export: %v\n%s", err, out)
	}
	if len(snap.Tasks) != 1 || snap.Tasks[0].Time != "07:45" || snap.Tasks[0].ID == "" || !snap.Tasks[0].Enabled {
		t.Fatalf("tasks = %+v", snap.Tasks)
	}
	if snap.Notifier.CorpID != "corp" || !snap.Notifier.Enable {
		t.Fatalf("notifier = %+v", snap.Notifier)
	}

	exported := filepath.Join(dir, "out.yaml")
	if _, err := execute(t, db, "config", "export", exported); err != nil {
		t.Fatalf("export to file: %v", err)
	}
	if info, err := os.Stat(exported); err != nil || info.Mode().Perm() != 0o600 {
		t.Fatalf("exported file: %v %v", info, err)
	}
}

func TestDecodeSnapshotDefaults(t *testing.T) {
	snap, err := decodeSnapshot(strings.NewReader("tasks: []\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Notifier.ToUser != domain.DefaultToUser {
		t.Fatalf("touser = %q", snap.Notifier.ToUser)
	}

	if _, err := decodeSnapshot(strings.NewReader("taskz: []\n")); err == nil {
		t.Fatal("unknown key accepted")
	}

	empty, err := decodeSnapshot(strings.NewReader(""))
	if err != nil || len(empty.Tasks) != 0 {
		t.Fatalf("empty document = %+v, %v", empty, err)
	}
}

func TestRunUnknownTask(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")
	if _, err := execute(t, db, "run", "missing"); err == nil {
		t.Fatal("run of unknown task succeeded")
	}
}
