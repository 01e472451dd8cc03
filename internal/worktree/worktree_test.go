package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func initRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "README.md")
	run("commit", "-q", "-m", "initial")
}

func TestSanitizeBranch(t *testing.T) {
	cases := map[string]string{
		"feature/x":  "feature-x",
		"a:b*c?d":    "a-b-c-d",
		"":           "unnamed-branch",
		".":          "unnamed-branch",
		"..":         "unnamed-branch",
		"plain":      "plain",
	}
	for in, want := range cases {
		if got := sanitizeBranch(in); got != want {
			t.Errorf("sanitizeBranch(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDerivePathDeterministic(t *testing.T) {
	p1 := DerivePath("/data", "/repo/a", "feature/x")
	p2 := DerivePath("/data", "/repo/a", "feature/x")
	if p1 != p2 {
		t.Fatalf("DerivePath not deterministic: %q vs %q", p1, p2)
	}
	p3 := DerivePath("/data", "/repo/b", "feature/x")
	if p1 == p3 {
		t.Fatalf("DerivePath collided across repos: %q", p1)
	}
}

func TestPrepareEmptyBranchReturnsProjectPath(t *testing.T) {
	res, err := Prepare(context.Background(), "/data", "/some/repo", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.WorkingDirectory != "/some/repo" || res.Created {
		t.Fatalf("got %+v", res)
	}
}

func TestPrepareCreatesAndReusesWorktree(t *testing.T) {
	requireGit(t)
	repo := t.TempDir()
	initRepo(t, repo)
	base := t.TempDir()

	res1, err := Prepare(context.Background(), base, repo, "feat")
	if err != nil {
		t.Fatal(err)
	}
	if !res1.Created || res1.WorkingDirectory == repo {
		t.Fatalf("expected new managed worktree, got %+v", res1)
	}
	if _, err := os.Stat(res1.WorkingDirectory); err != nil {
		t.Fatalf("worktree dir missing: %v", err)
	}

	res2, err := Prepare(context.Background(), base, repo, "feat")
	if err != nil {
		t.Fatal(err)
	}
	if res2.Created {
		t.Fatalf("expected reuse on second prepare, got %+v", res2)
	}
	if res2.WorkingDirectory != res1.WorkingDirectory {
		t.Fatalf("expected same path on reuse: %q vs %q", res1.WorkingDirectory, res2.WorkingDirectory)
	}
}

func TestPrepareOnNonGitDirFallsBackWithWarning(t *testing.T) {
	notARepo := t.TempDir()
	base := t.TempDir()

	res, err := Prepare(context.Background(), base, notARepo, "feat")
	if err != nil {
		t.Fatal(err)
	}
	if res.Created {
		t.Fatalf("expected fallback, got %+v", res)
	}
	if res.WorkingDirectory != notARepo {
		t.Fatalf("expected fallback to project path, got %q", res.WorkingDirectory)
	}
	if res.Warning == "" {
		t.Fatal("expected a populated warning")
	}
}

func TestRemoveAndPrune(t *testing.T) {
	requireGit(t)
	repo := t.TempDir()
	initRepo(t, repo)
	base := t.TempDir()

	res, err := Prepare(context.Background(), base, repo, "scratch")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Created {
		t.Fatalf("expected worktree to be created, got %+v", res)
	}

	if err := Remove(context.Background(), repo, res.WorktreePath); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(res.WorktreePath); !os.IsNotExist(err) {
		t.Fatalf("expected worktree dir removed, stat err = %v", err)
	}

	if err := Prune(context.Background(), base, repo); err != nil {
		t.Fatal(err)
	}
}
