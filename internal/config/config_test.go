package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManagerProjectOverridesUser(t *testing.T) {
	userDir := t.TempDir()
	projectDir := t.TempDir()

	writeSettings(t, filepath.Join(userDir, "settings.json"), `{"log_level":"debug","poll_ms":1000}`)
	writeSettings(t, filepath.Join(projectDir, ".qsjs", "settings.json"), `{"poll_ms":250}`)

	m := NewManager()
	if err := m.Load(userDir, projectDir); err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := m.Get()
	if got.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug (inherited from user settings)", got.LogLevel)
	}
	if got.PollMillis != 250 {
		t.Errorf("PollMillis = %d, want 250 (project overrides user)", got.PollMillis)
	}
}

func TestManagerMissingFilesUseDefaults(t *testing.T) {
	m := NewManager()
	if err := m.Load(t.TempDir(), t.TempDir()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := m.Get()
	if got.LogLevel != "warn" || got.PollMillis != 500 {
		t.Errorf("Get() = %+v, want defaults", got)
	}
}

func TestGetProjectDirFindsGitRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	got, err := GetProjectDir(sub)
	if err != nil {
		t.Fatalf("GetProjectDir: %v", err)
	}
	if got != root {
		t.Errorf("GetProjectDir(%q) = %q, want %q", sub, got, root)
	}
}

func writeSettings(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
}
