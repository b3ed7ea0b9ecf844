package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner answers git commands from canned output and counts calls by
// subcommand.
type fakeRunner struct {
	outputs map[string]string
	fail    map[string]bool
	calls   map[string]int
	args    map[string][]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}, fail: map[string]bool{}, calls: map[string]int{}, args: map[string][]string{}}
}

func (f *fakeRunner) Run(_ context.Context, args ...string) (string, error) {
	f.calls[args[0]]++
	f.args[args[0]] = args
	if f.fail[args[0]] {
		return "", errors.New("fatal: not a git repository")
	}
	return f.outputs[args[0]], nil
}

func noEnv(string) (string, bool) { return "", false }

func newTestGateway(r Runner) *Gateway {
	g := NewGateway(r, "main")
	g.SetEnvLookup(noEnv)
	return g
}

func TestCurrentBranch(t *testing.T) {
	r := newFakeRunner()
	r.outputs["symbolic-ref"] = "refs/heads/feature/login\n"
	assert.Equal(t, "feature/login", newTestGateway(r).CurrentBranch(context.Background()))

	r.fail["symbolic-ref"] = true
	assert.Equal(t, "", newTestGateway(r).CurrentBranch(context.Background()), "detached HEAD yields empty branch")
}

func TestBranches(t *testing.T) {
	r := newFakeRunner()
	r.outputs["branch"] = "main\n  feature/with-slashes \n\nfix-1\n"
	assert.Equal(t, []string{"main", "feature/with-slashes", "fix-1"}, newTestGateway(r).Branches(context.Background()))

	r.fail["branch"] = true
	assert.Empty(t, newTestGateway(r).Branches(context.Background()))
}

func TestParentFromReflogLine(t *testing.T) {
	hash := strings.Repeat("a1", 20)
	tests := []struct {
		name     string
		line     string
		expected string
	}{
		{"simple move", "checkout: moving from feature-parent to feature-child", "feature-parent"},
		{"slashes", "checkout: moving from team/base to feature-child", "team/base"},
		{"self reference", "checkout: moving from feature-child to feature-child", ""},
		{"detached hash", "checkout: moving from " + hash + " to feature-child", ""},
		{"other target", "checkout: moving from main to other", ""},
		{"not a checkout", "commit: add things", ""},
		{"target is a prefix", "checkout: moving from main to feature-child-2", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParentFromReflogLine(tt.line, "feature-child"))
		})
	}
}

func TestParentBranch(t *testing.T) {
	hash := strings.Repeat("0f", 20)
	tests := []struct {
		name     string
		current  string
		reflog   string
		expected string
	}{
		{
			name:     "newest matching entry wins",
			current:  "feature-child",
			reflog:   "checkout: moving from feature-parent to feature-child\ncheckout: moving from main to feature-child\n",
			expected: "feature-parent",
		},
		{
			name:     "skips detached and self entries",
			current:  "feature-child",
			reflog:   "checkout: moving from " + hash + " to feature-child\ncheckout: moving from feature-child to feature-child\ncheckout: moving from develop to feature-child\n",
			expected: "develop",
		},
		{
			name:     "falls back to main branch",
			current:  "feature-child",
			reflog:   "checkout: moving from " + hash + " to feature-child\ncommit: wip\n",
			expected: "main",
		},
		{
			name:     "detached head falls back to main branch",
			current:  "",
			reflog:   "checkout: moving from develop to feature-child\n",
			expected: "main",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeRunner()
			if tt.current == "" {
				r.fail["symbolic-ref"] = true
			} else {
				r.outputs["symbolic-ref"] = "refs/heads/" + tt.current + "\n"
			}
			r.outputs["reflog"] = tt.reflog

			assert.Equal(t, tt.expected, newTestGateway(r).ParentBranch(context.Background()))
		})
	}
}

func TestParentBranch_ReflogDepth(t *testing.T) {
	r := newFakeRunner()
	r.outputs["symbolic-ref"] = "refs/heads/feature-child\n"
	r.outputs["reflog"] = strings.Repeat("commit: wip\n", reflogDepth) +
		"checkout: moving from develop to feature-child\n"

	assert.Equal(t, "main", newTestGateway(r).ParentBranch(context.Background()), "entries past the depth are ignored")
	assert.Equal(t, []string{"reflog", "show", "--format=%gs", "-n", "100"}, r.args["reflog"])
}

func TestParentBranch_EnvOverride(t *testing.T) {
	r := newFakeRunner()
	r.outputs["symbolic-ref"] = "refs/heads/feature-child\n"
	r.outputs["reflog"] = "checkout: moving from develop to feature-child\n"

	g := NewGateway(r, "main")
	g.SetEnvLookup(func(key string) (string, bool) {
		if key == ParentEnvVar {
			return "release", true
		}
		return "", false
	})

	assert.Equal(t, "release", g.ParentBranch(context.Background()))
	assert.Zero(t, r.calls["reflog"], "override must skip reflog inspection")
}

func TestParentBranch_Cache(t *testing.T) {
	r := newFakeRunner()
	r.outputs["symbolic-ref"] = "refs/heads/feature-child\n"
	r.outputs["reflog"] = "checkout: moving from feature-parent to feature-child\n"
	g := newTestGateway(r)
	ctx := context.Background()

	assert.Equal(t, "feature-parent", g.ParentBranch(ctx))
	assert.Equal(t, "feature-parent", g.ParentBranch(ctx))
	assert.Equal(t, 1, r.calls["reflog"])

	r.outputs["reflog"] = "checkout: moving from develop to feature-child\n"
	g.InvalidateParentCache()
	assert.Equal(t, "develop", g.ParentBranch(ctx))
	assert.Equal(t, 2, r.calls["reflog"])
}

func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	run("init", "-b", "main")
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "Test User")
	run("config", "commit.gpgsign", "false")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Test\n"), 0644))
	run("add", ".")
	run("commit", "-m", "initial")
	run("checkout", "-b", "feature/parent")
	run("checkout", "-b", "feature-child")

	return dir
}

func TestGateway_RealRepository(t *testing.T) {
	dir := initTestRepo(t)
	g := newTestGateway(ExecRunner{Dir: dir})
	ctx := context.Background()

	assert.Equal(t, "feature-child", g.CurrentBranch(ctx))
	assert.ElementsMatch(t, []string{"main", "feature/parent", "feature-child"}, g.Branches(ctx))
	assert.Equal(t, "feature/parent", g.ParentBranch(ctx))
	assert.NotEmpty(t, g.GitDir(ctx))
}

func TestGateway_OutsideRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	t.Setenv("GIT_CEILING_DIRECTORIES", os.TempDir())
	g := newTestGateway(ExecRunner{Dir: t.TempDir()})
	ctx := context.Background()

	assert.Equal(t, "", g.CurrentBranch(ctx))
	assert.Empty(t, g.Branches(ctx))
	assert.Equal(t, "main", g.ParentBranch(ctx))
	assert.Equal(t, "", g.GitDir(ctx))
}

func TestHeadWatcher_BranchSwitch(t *testing.T) {
	dir := initTestRepo(t)
	g := newTestGateway(ExecRunner{Dir: dir})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 16)
	w, err := NewHeadWatcher(g.GitDir(ctx), func() { changed <- struct{}{} })
	require.NoError(t, err)
	defer w.Stop()
	go w.Start(ctx)

	cmd := exec.Command("git", "checkout", "main")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("expected HEAD change notification")
	}
	assert.Equal(t, "main", g.CurrentBranch(ctx))
}
