// Package git queries the local repository for branch information.
//
// Every query tolerates running outside a repository: failures yield empty
// results rather than errors, so callers fall back to unscoped names.
package git

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/milkstrawai/branch-db/internal/logger"
)

// ParentEnvVar overrides parent branch inference when set.
const ParentEnvVar = "BRANCH_DB_PARENT"

// reflogDepth is how many checkout entries are scanned for a parent.
const reflogDepth = 100

var commitHash = regexp.MustCompile(`^[a-f0-9]{40}$`)

// Runner executes git with the given arguments and returns stdout.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecRunner runs the git binary in Dir (the working directory when empty).
type ExecRunner struct {
	Dir string
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return stdout.String(), nil
}

// Gateway answers branch queries and caches the parent branch.
type Gateway struct {
	runner     Runner
	mainBranch string
	lookupEnv  func(string) (string, bool)

	mu           sync.Mutex
	parent       string
	parentCached bool
}

// NewGateway creates a Gateway. mainBranch is the fallback parent.
func NewGateway(runner Runner, mainBranch string) *Gateway {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Gateway{
		runner:     runner,
		mainBranch: mainBranch,
		lookupEnv:  os.LookupEnv,
	}
}

// SetEnvLookup replaces the environment lookup used for the parent override.
func (g *Gateway) SetEnvLookup(fn func(string) (string, bool)) {
	g.lookupEnv = fn
}

// CurrentBranch returns the checked out branch, or "" when HEAD is detached
// or the directory is not a repository.
func (g *Gateway) CurrentBranch(ctx context.Context) string {
	out, err := g.runner.Run(ctx, "symbolic-ref", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.TrimSpace(out), "refs/heads/")
}

// Branches returns all local branch names.
func (g *Gateway) Branches(ctx context.Context) []string {
	out, err := g.runner.Run(ctx, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil
	}
	return splitLines(out)
}

// ParentBranch returns the branch the current one was created from. The
// result is cached until InvalidateParentCache is called.
func (g *Gateway) ParentBranch(ctx context.Context) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.parentCached {
		return g.parent
	}
	g.parent = g.detectParent(ctx)
	g.parentCached = true
	logger.Debug("Resolved parent branch", "parent", g.parent)
	return g.parent
}

// InvalidateParentCache forces the next ParentBranch call to recompute.
// Long-running callers must invoke it after a branch switch.
func (g *Gateway) InvalidateParentCache() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.parent = ""
	g.parentCached = false
}

func (g *Gateway) detectParent(ctx context.Context) string {
	if parent, ok := g.lookupEnv(ParentEnvVar); ok {
		return parent
	}
	if parent := g.parentFromReflog(ctx); parent != "" {
		return parent
	}
	return g.mainBranch
}

func (g *Gateway) parentFromReflog(ctx context.Context) string {
	current := g.CurrentBranch(ctx)
	if current == "" {
		return ""
	}

	out, err := g.runner.Run(ctx, "reflog", "show", "--format=%gs", "-n", strconv.Itoa(reflogDepth))
	if err != nil {
		return ""
	}

	lines := strings.Split(out, "\n")
	if len(lines) > reflogDepth {
		lines = lines[:reflogDepth]
	}
	for _, line := range lines {
		if parent := ParentFromReflogLine(strings.TrimRight(line, "\r"), current); parent != "" {
			return parent
		}
	}
	return ""
}

// ParentFromReflogLine extracts X from "checkout: moving from X to current".
// Self-referential moves and detached-HEAD commit hashes yield "".
func ParentFromReflogLine(line, current string) string {
	const prefix = "checkout: moving from "
	suffix := " to " + current

	if !strings.HasPrefix(line, prefix) || !strings.HasSuffix(line, suffix) {
		return ""
	}
	rest := strings.TrimPrefix(line, prefix)
	if len(rest) < len(suffix)+1 {
		return ""
	}
	parent := strings.TrimSpace(strings.TrimSuffix(rest, suffix))
	if parent == "" || parent == current || commitHash.MatchString(parent) {
		return ""
	}
	return parent
}

func splitLines(out string) []string {
	var result []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			result = append(result, line)
		}
	}
	return result
}
