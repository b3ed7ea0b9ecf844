// Package naming derives branch-scoped database names.
package naming

import (
	"context"
	"strings"

	"github.com/milkstrawai/branch-db/internal/config"
)

// Sanitize replaces every character outside [A-Za-z0-9_] with an underscore.
func Sanitize(branch string) string {
	var b strings.Builder
	b.Grow(len(branch))
	for _, r := range branch {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// SuffixFor returns "_" followed by the sanitized branch truncated to
// maxLength characters, or "" when nothing remains.
func SuffixFor(branch string, maxLength int) string {
	sanitized := Sanitize(branch)
	if maxLength < 0 {
		maxLength = 0
	}
	if len(sanitized) > maxLength {
		sanitized = sanitized[:maxLength]
	}
	if sanitized == "" {
		return ""
	}
	return "_" + sanitized
}

// DatabaseName appends a branch suffix to a base name.
func DatabaseName(baseName, suffix string) string {
	return baseName + suffix
}

// MainDatabaseName is the database of the main branch. It always uses a
// literal "_" separator and the unsanitized main branch name.
func MainDatabaseName(baseName, mainBranch string) string {
	return baseName + "_" + mainBranch
}

// ParentDatabaseName is the database a branch forked from.
func ParentDatabaseName(baseName, parentBranch string) string {
	return baseName + "_" + Sanitize(parentBranch)
}

// BaseName strips suffix from the end of target when it is a true suffix.
func BaseName(target, suffix string) string {
	if suffix == "" || !strings.HasSuffix(target, suffix) {
		return target
	}
	return strings.TrimSuffix(target, suffix)
}

// BranchSource supplies the branch names naming depends on.
type BranchSource interface {
	CurrentBranch(ctx context.Context) string
	ParentBranch(ctx context.Context) string
}

// Namer binds the pure naming rules to settings and a branch source.
type Namer struct {
	settings config.Settings
	branches BranchSource
}

// NewNamer creates a Namer.
func NewNamer(settings config.Settings, branches BranchSource) *Namer {
	return &Namer{settings: settings, branches: branches}
}

// Settings returns the naming settings.
func (n *Namer) Settings() config.Settings {
	return n.settings
}

// BranchSuffix is the suffix of the current branch.
func (n *Namer) BranchSuffix(ctx context.Context) string {
	return SuffixFor(n.branches.CurrentBranch(ctx), n.settings.MaxBranchLength)
}

// DatabaseName is baseName scoped to the current branch.
func (n *Namer) DatabaseName(ctx context.Context, baseName string) string {
	return DatabaseName(baseName, n.BranchSuffix(ctx))
}

// MainDatabaseName is baseName scoped to the configured main branch.
func (n *Namer) MainDatabaseName(baseName string) string {
	return MainDatabaseName(baseName, n.settings.MainBranch)
}

// ParentDatabaseName is baseName scoped to the resolved parent branch.
func (n *Namer) ParentDatabaseName(ctx context.Context, baseName string) string {
	return ParentDatabaseName(baseName, n.branches.ParentBranch(ctx))
}

// BaseName strips the current branch suffix from target.
func (n *Namer) BaseName(ctx context.Context, target string) string {
	return BaseName(target, n.BranchSuffix(ctx))
}

// TestName substitutes the test suffix for the first occurrence of the
// development suffix.
func (n *Namer) TestName(name string) string {
	return strings.Replace(name, n.settings.DevelopmentSuffix, n.settings.TestSuffix, 1)
}
