// Package gitrepo provides the version-control operations the sync pipeline
// consumes, behind an interface so the core logic can be tested without a
// real git tree.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrRebaseInProgress reports an unfinished rebase in the working tree. The
// push stage refuses to run until it is completed or aborted.
var ErrRebaseInProgress = errors.New("rebase in progress, complete or abort it")

// Change is one staged path with its git status letter. RenamedTo is set for
// renames.
type Change struct {
	Status    string
	Path      string
	RenamedTo string
}

// Repo provides git operations against a working directory.
type Repo interface {
	// Pull fetches origin and hard-resets the working tree to the remote
	// tracking branch, discarding local changes.
	Pull(ctx context.Context) error
	// RebaseInProgress reports whether the tree has an unfinished rebase.
	RebaseInProgress(ctx context.Context) bool
	// CurrentBranch returns the current branch name, or "HEAD" when
	// detached.
	CurrentBranch(ctx context.Context) (string, error)
	// CreateBranch creates and checks out a new branch.
	CreateBranch(ctx context.Context, name string) error
	// HasChanges reports whether the working tree has uncommitted changes.
	HasChanges(ctx context.Context) (bool, error)
	// StageAll stages every change in the working tree.
	StageAll(ctx context.Context) error
	// DiffNameStatus returns the staged changes as path/status pairs.
	DiffNameStatus(ctx context.Context) ([]Change, error)
	// Commit commits the staged changes with the given message.
	Commit(ctx context.Context, message string) error
	// Push pushes the branch to origin.
	Push(ctx context.Context, branch string) error
}

// ShellRepo implements Repo by shelling out to the git command.
type ShellRepo struct {
	dir    string
	logger *slog.Logger
}

// NewShellRepo creates a git client for the given working directory.
func NewShellRepo(dir string, logger *slog.Logger) *ShellRepo {
	return &ShellRepo{dir: dir, logger: logger}
}

// git runs a git subcommand in the working directory and returns its output,
// folding stderr into the error on failure.
func (r *ShellRepo) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", r.dir}, args...)...)
	output, err := cmd.CombinedOutput()
	out := strings.TrimSpace(string(output))
	if err != nil {
		return out, fmt.Errorf("git %s: %w: %s", args[0], err, out)
	}
	return out, nil
}

// Pull fetches origin and hard-resets to the remote tracking branch. The
// upstream is resolved via @{u}, falling back to origin/<current branch>.
func (r *ShellRepo) Pull(ctx context.Context) error {
	if _, err := r.git(ctx, "fetch", "origin"); err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	target := ""
	if upstream, err := r.git(ctx, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}"); err == nil && upstream != "" {
		target = upstream
	} else if branch, err := r.CurrentBranch(ctx); err == nil && branch != "" && branch != "HEAD" {
		target = "origin/" + branch
	}
	if target == "" {
		return fmt.Errorf("cannot resolve remote tracking branch for %s", r.dir)
	}

	if _, err := r.git(ctx, "reset", "--hard", target); err != nil {
		return fmt.Errorf("hard reset to %s failed: %w", target, err)
	}

	r.logger.Info("working tree reset to remote", "target", target)
	return nil
}

// RebaseInProgress reports whether a rebase is underway; git exits zero from
// `rebase --show-current-patch` only in that case.
func (r *ShellRepo) RebaseInProgress(ctx context.Context) bool {
	_, err := r.git(ctx, "rebase", "--show-current-patch")
	return err == nil
}

// CurrentBranch returns the current branch name ("HEAD" when detached).
func (r *ShellRepo) CurrentBranch(ctx context.Context) (string, error) {
	return r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// CreateBranch creates and checks out a new branch.
func (r *ShellRepo) CreateBranch(ctx context.Context, name string) error {
	_, err := r.git(ctx, "checkout", "-b", name)
	return err
}

// HasChanges reports whether `git status --porcelain` shows anything.
func (r *ShellRepo) HasChanges(ctx context.Context) (bool, error) {
	out, err := r.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// StageAll stages all working tree changes.
func (r *ShellRepo) StageAll(ctx context.Context) error {
	_, err := r.git(ctx, "add", ".")
	return err
}

// DiffNameStatus returns the staged changes.
func (r *ShellRepo) DiffNameStatus(ctx context.Context) ([]Change, error) {
	out, err := r.git(ctx, "diff", "--cached", "--name-status")
	if err != nil {
		return nil, err
	}
	return ParseNameStatus(out), nil
}

// Commit commits staged changes with the given message.
func (r *ShellRepo) Commit(ctx context.Context, message string) error {
	_, err := r.git(ctx, "commit", "-m", message)
	return err
}

// Push pushes branch to origin.
func (r *ShellRepo) Push(ctx context.Context, branch string) error {
	_, err := r.git(ctx, "push", "origin", branch)
	return err
}

// ParseNameStatus parses `git diff --name-status` output. Fields are
// tab-separated; renames carry the new path in a third field.
func ParseNameStatus(out string) []Change {
	var changes []Change
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		c := Change{Status: fields[0], Path: fields[1]}
		if strings.HasPrefix(fields[0], "R") && len(fields) >= 3 {
			c.RenamedTo = fields[2]
		}
		changes = append(changes, c)
	}
	return changes
}
