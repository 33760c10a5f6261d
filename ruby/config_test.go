package ruby

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	doc := `
[history]
capacity = 16

[log]
verbosity = 2

[worker]
queue-depth = 8
`
	if err := os.WriteFile(filepath.Join(dir, "rubygateway.toml"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := &Config{
		History: HistoryConfig{Capacity: 16},
		Log:     LogConfig{Verbosity: 2},
		Worker:  WorkerConfig{QueueDepth: 8},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "rubygateway.toml"), []byte("[log]\nverbosity = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.History.Capacity != defaultHistoryCapacity {
		t.Errorf("capacity = %d, want default %d", cfg.History.Capacity, defaultHistoryCapacity)
	}
	if cfg.Worker.QueueDepth != 64 {
		t.Errorf("queue depth = %d, want 64", cfg.Worker.QueueDepth)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Error("LoadConfig on empty dir succeeded, want error")
	}
}

func TestLoadConfigBadToml(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "rubygateway.toml"), []byte("history = [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(dir); err == nil {
		t.Error("LoadConfig on malformed file succeeded, want error")
	}
}
