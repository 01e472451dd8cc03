package daemoncfg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingPathReturnsEmptyConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WorktreeRoot != "" || len(cfg.Projects) != 0 {
		t.Fatalf("expected zero-value config, got %+v", cfg)
	}

	cfg, err = Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WorktreeRoot != "" {
		t.Fatalf("expected zero-value config for nonexistent file, got %+v", cfg)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrald.yaml")
	const doc = `
worktree_root: /tmp/corral-worktrees
default_shell: /bin/zsh
env:
  FOO: bar
projects:
  - name: demo
    path: /repos/demo
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WorktreeRoot != "/tmp/corral-worktrees" {
		t.Fatalf("got %q", cfg.WorktreeRoot)
	}
	if cfg.DefaultShell != "/bin/zsh" {
		t.Fatalf("got %q", cfg.DefaultShell)
	}
	if cfg.Env["FOO"] != "bar" {
		t.Fatalf("got env %+v", cfg.Env)
	}
	if got := cfg.ProjectPath("demo"); got != "/repos/demo" {
		t.Fatalf("got %q", got)
	}
	if got := cfg.ProjectPath("missing"); got != "" {
		t.Fatalf("expected empty path for unknown project, got %q", got)
	}
}

func TestMergedEnvExtraWins(t *testing.T) {
	cfg := &Config{Env: map[string]string{"A": "1", "B": "2"}}
	merged := cfg.MergedEnv(map[string]string{"B": "override", "C": "3"})

	want := map[string]string{"A": "1", "B": "override", "C": "3"}
	if len(merged) != len(want) {
		t.Fatalf("got %+v, want %+v", merged, want)
	}
	for k, v := range want {
		if merged[k] != v {
			t.Fatalf("key %q: got %q, want %q", k, merged[k], v)
		}
	}
}
