package branchdb

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize/english"
	"github.com/milkstrawai/branch-db/internal/config"
	"github.com/milkstrawai/branch-db/internal/logger"
	"github.com/milkstrawai/branch-db/internal/naming"
)

// confirmPrompt is written before reading the operator's answer.
const confirmPrompt = "\nProceed with deletion? [y/N] "

// Cleaner finds and removes branch databases derived from one base name.
type Cleaner struct {
	deps     Deps
	profile  config.ConnectionProfile
	branches BranchLister
	input    *bufio.Reader
}

// NewCleaner creates a Cleaner for the branch database in profile.Database.
// Confirmation answers are read from input.
func NewCleaner(profile config.ConnectionProfile, deps Deps, branches BranchLister, input io.Reader) *Cleaner {
	return &Cleaner{
		deps:     deps,
		profile:  profile,
		branches: branches,
		input:    bufio.NewReader(input),
	}
}

// ListBranchDatabases returns every development and test database derived
// from the base name, printing them for the operator.
func (c *Cleaner) ListBranchDatabases(ctx context.Context) ([]string, error) {
	all, err := c.allBranchDatabases(ctx)
	if err != nil {
		return nil, err
	}

	if len(all) == 0 {
		c.deps.Console.Log("No branch databases found%s.", c.label())
		return nil, nil
	}

	c.deps.Console.Log("Found %d branch database(s)%s:", len(all), c.label())
	for _, name := range all {
		c.deps.Console.Log("  - %s", name)
	}
	return all, nil
}

// ProtectedDatabases are never purged or pruned: the current development and
// test databases and the main branch development and test databases.
func (c *Cleaner) ProtectedDatabases(ctx context.Context) []string {
	devPrefix, testPrefix := c.prefixes(ctx)
	currentDev := c.profile.Database
	main := c.deps.Namer.Settings().MainBranch

	return []string{
		currentDev,
		strings.Replace(currentDev, devPrefix, testPrefix, 1),
		devPrefix + main,
		testPrefix + main,
	}
}

// Purge drops every branch database except the protected ones. With confirm
// set the operator must answer y first.
func (c *Cleaner) Purge(ctx context.Context, confirm bool) error {
	candidates, err := c.deletableDatabases(ctx)
	if err != nil {
		return err
	}
	return c.deleteDatabases(ctx, candidates, confirm,
		fmt.Sprintf("No old branch databases to purge%s.", c.label()),
		fmt.Sprintf("Purge complete%s!", c.label()))
}

// Prune drops branch databases whose git branch no longer exists locally.
func (c *Cleaner) Prune(ctx context.Context, confirm bool) error {
	candidates, err := c.prunableDatabases(ctx)
	if err != nil {
		return err
	}
	return c.deleteDatabases(ctx, candidates, confirm,
		fmt.Sprintf("No stale branch databases to prune%s.", c.label()),
		fmt.Sprintf("Prune complete%s!", c.label()))
}

func (c *Cleaner) deletableDatabases(ctx context.Context) ([]string, error) {
	all, err := c.allBranchDatabases(ctx)
	if err != nil {
		return nil, err
	}
	protected := toSet(c.ProtectedDatabases(ctx))

	var candidates []string
	for _, name := range all {
		if !protected[name] {
			candidates = append(candidates, name)
		}
	}
	return candidates, nil
}

func (c *Cleaner) prunableDatabases(ctx context.Context) ([]string, error) {
	deletable, err := c.deletableDatabases(ctx)
	if err != nil {
		return nil, err
	}

	live := c.liveBranchNames(ctx)
	devPrefix, testPrefix := c.prefixes(ctx)

	var candidates []string
	for _, name := range deletable {
		prefix := devPrefix
		if strings.HasPrefix(name, testPrefix) {
			prefix = testPrefix
		}
		if live[strings.TrimPrefix(name, prefix)] {
			logger.Debug("Keeping database with a live branch", "database", name)
			continue
		}
		candidates = append(candidates, name)
	}
	return candidates, nil
}

// liveBranchNames holds the sanitized name of every local branch, plus the
// truncated form used in database suffixes.
func (c *Cleaner) liveBranchNames(ctx context.Context) map[string]bool {
	maxLength := c.deps.Namer.Settings().MaxBranchLength
	live := make(map[string]bool)
	for _, branch := range c.branches.Branches(ctx) {
		live[naming.Sanitize(branch)] = true
		if suffix := naming.SuffixFor(branch, maxLength); suffix != "" {
			live[strings.TrimPrefix(suffix, "_")] = true
		}
	}
	return live
}

func (c *Cleaner) deleteDatabases(ctx context.Context, candidates []string, confirm bool, emptyMsg, doneMsg string) error {
	if len(candidates) == 0 {
		c.deps.Console.Log("%s", emptyMsg)
		return nil
	}

	c.deps.Console.Log("Found %d database(s) to remove:", len(candidates))
	for _, name := range candidates {
		c.deps.Console.Log("  - %s", name)
	}

	if confirm && !c.confirmed() {
		c.deps.Console.Log("Aborted.")
		return nil
	}

	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.dropDatabase(ctx, name)
	}

	c.deps.Console.Log("%s", doneMsg)
	return nil
}

// dropDatabase drops name unless sessions are connected to it. Failures are
// reported on the console and do not stop the caller.
func (c *Cleaner) dropDatabase(ctx context.Context, name string) {
	active, err := c.deps.Tools.ActiveConnectionCount(ctx, c.profile, name)
	if err != nil {
		logger.Warn("Could not count active connections", "database", name, "error", err)
		c.deps.Console.Warning("Skipping %s (active connections unknown)", name)
		return
	}
	if active > 0 {
		c.deps.Console.Warning("Skipping %s (%s)", name, english.Plural(active, "active connection", ""))
		return
	}

	if c.deps.Tools.DropDatabase(ctx, c.profile, name) {
		c.deps.Console.Success("Dropped %s", name)
	} else {
		c.deps.Console.Failure("Failed to drop %s", name)
	}
}

// confirmed prompts and reads one line. Only y or Y proceeds.
func (c *Cleaner) confirmed() bool {
	fmt.Fprint(c.deps.Console.Writer(), confirmPrompt)

	line, err := c.input.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.ToLower(strings.TrimRight(line, "\r\n")) == "y"
}

func (c *Cleaner) allBranchDatabases(ctx context.Context) ([]string, error) {
	if err := c.deps.Tools.RequireTools("psql", "dropdb"); err != nil {
		return nil, err
	}
	names, err := c.deps.Tools.ListDatabaseNames(ctx, c.profile)
	if err != nil {
		return nil, err
	}

	devPrefix, testPrefix := c.prefixes(ctx)
	seen := make(map[string]bool)
	var all []string
	for _, prefix := range []string{devPrefix, testPrefix} {
		for _, name := range names {
			if strings.HasPrefix(name, prefix) && !seen[name] {
				seen[name] = true
				all = append(all, name)
			}
		}
	}
	return all, nil
}

// prefixes returns the development and test database prefixes.
func (c *Cleaner) prefixes(ctx context.Context) (string, string) {
	base := c.deps.Namer.BaseName(ctx, c.profile.Database)
	return base + "_", c.deps.Namer.TestName(base) + "_"
}

func (c *Cleaner) label() string {
	if name := c.profile.Label(); name != "" {
		return " for " + name
	}
	return ""
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
