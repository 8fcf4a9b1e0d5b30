package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tableflip.dev/taskpad/pkg/entity"
)

func TestMirrorRoundTrip(t *testing.T) {
	m, err := OpenMirror(testConfig{path: t.TempDir()})
	if err != nil {
		t.Fatalf("open mirror: %v", err)
	}

	var empty []entity.Note
	ok, err := m.Load("bob", entity.KindNotes, &empty)
	if err != nil || ok {
		t.Fatalf("missing blob should report false without error, got %v %v", ok, err)
	}

	now := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	notes := []entity.Note{{ID: "n1", OwnerID: "bob", Title: "standup", Content: "#work", Tags: []string{"work"}, CreatedAt: now, UpdatedAt: now}}
	if err := m.Save("bob", entity.KindNotes, notes); err != nil {
		t.Fatalf("save: %v", err)
	}
	var got []entity.Note
	ok, err = m.Load("bob", entity.KindNotes, &got)
	if err != nil || !ok {
		t.Fatalf("load: %v %v", ok, err)
	}
	if len(got) != 1 || got[0].Title != "standup" || !got[0].CreatedAt.Equal(now) {
		t.Fatalf("unexpected round trip %+v", got)
	}

	// Overwritten wholesale.
	if err := m.Save("bob", entity.KindNotes, []entity.Note{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got = nil
	if _, err := m.Load("bob", entity.KindNotes, &got); err != nil || len(got) != 0 {
		t.Fatalf("expected empty set, got %+v %v", got, err)
	}
}

func TestMirrorKeysAreOwnerScoped(t *testing.T) {
	m, err := OpenMirror(testConfig{path: t.TempDir()})
	if err != nil {
		t.Fatalf("open mirror: %v", err)
	}
	owners := []string{"alice", "user-with-dashes", "a/b"}
	for _, owner := range owners {
		if err := m.Save(owner, entity.KindLists, []entity.TaskList{{ID: owner, Name: owner}}); err != nil {
			t.Fatalf("save %q: %v", owner, err)
		}
	}
	for _, owner := range owners {
		var got []entity.TaskList
		if ok, err := m.Load(owner, entity.KindLists, &got); !ok || err != nil || got[0].ID != owner {
			t.Fatalf("owner %q: unexpected load %+v %v", owner, got, err)
		}
	}
	if n := len(m.Owners()); n != len(owners) {
		t.Fatalf("expected %d owners, got %d", len(owners), n)
	}
	if err := m.Erase("alice", entity.KindLists); err != nil {
		t.Fatalf("erase: %v", err)
	}
	var gone []entity.TaskList
	if ok, _ := m.Load("alice", entity.KindLists, &gone); ok {
		t.Fatalf("expected erased blob")
	}
}

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TASKPAD_CONFIG_PATH", dir)
	t.Setenv("TASKPAD_OWNER", "carol")
	t.Setenv("TASKPAD_SYNC_RETRIES", "4")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Owner != "carol" || cfg.Sync.Retries != 4 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Sync.Debounce != 300*time.Millisecond || cfg.Sync.Grace != 5*time.Second {
		t.Fatalf("unexpected sync defaults %+v", cfg.Sync)
	}
	if filepath.Base(cfg.Mirror) != "mirror" || cfg.Mirror[0] == '~' {
		t.Fatalf("expected expanded mirror path, got %q", cfg.Mirror)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	body := "owner: dana\nbackend: memory\nmirror: " + filepath.Join(dir, "m") + "\nsync:\n  debounce: 50ms\n"
	if err := os.WriteFile(filepath.Join(dir, ".taskpad.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TASKPAD_CONFIG_PATH", dir)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Owner != "dana" || cfg.Backend != BackendMemory || cfg.Sync.Debounce != 50*time.Millisecond {
		t.Fatalf("config file not applied: %+v", cfg)
	}
	if cfg.BasePath() != filepath.Join(dir, "m") {
		t.Fatalf("unexpected mirror path %q", cfg.BasePath())
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Setenv("TASKPAD_CONFIG_PATH", t.TempDir())
	t.Setenv("TASKPAD_BACKEND", "floppy")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
