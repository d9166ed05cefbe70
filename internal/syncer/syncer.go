// Package syncer sequences a full sync run: pull, reconcile, fetch, export,
// prune, push, report. Stages are strictly sequential with no internal
// parallelism; a run either completes or fails on one of the two fatal
// stages (pull, rebase-blocked push).
package syncer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rmmtools/scriptsync/internal/config"
	"github.com/rmmtools/scriptsync/internal/export"
	"github.com/rmmtools/scriptsync/internal/gitrepo"
	"github.com/rmmtools/scriptsync/internal/manifest"
	"github.com/rmmtools/scriptsync/internal/prune"
	"github.com/rmmtools/scriptsync/internal/reconcile"
	"github.com/rmmtools/scriptsync/internal/rmm"
)

// fallbackBranch is committed to when the tree is on a detached HEAD.
const fallbackBranch = "update-scripts"

// userDefinedType filters the script list to user-maintained scripts.
const userDefinedType = "userdefined"

// Gateway is the remote store surface the engine consumes.
type Gateway interface {
	ListScripts(ctx context.Context) []rmm.Definition
	ListSnippets(ctx context.Context) []rmm.Definition
	Download(ctx context.Context, id int64) (rmm.Payload, bool)
	UpdateScript(ctx context.Context, id int64, payload rmm.Payload) error
}

// Report is what a completed run tells the operator.
type Report struct {
	// Exported counts definitions written (or intended in dry mode).
	Exported int
	// ShellTally counts exported scripts per shell type.
	ShellTally map[string]int
}

// Engine orchestrates the sync pipeline.
type Engine struct {
	cfg     *config.Config
	gateway Gateway
	repo    gitrepo.Repo
	mode    config.RunMode
	logger  *slog.Logger
	out     io.Writer
}

// NewEngine creates a sync engine. out receives operator-facing previews;
// pass nil for os.Stdout.
func NewEngine(cfg *config.Config, gateway Gateway, repo gitrepo.Repo, mode config.RunMode, logger *slog.Logger, out io.Writer) *Engine {
	if out == nil {
		out = os.Stdout
	}
	return &Engine{cfg: cfg, gateway: gateway, repo: repo, mode: mode, logger: logger, out: out}
}

// Run executes the pipeline. It returns an error only for the fatal failure
// classes: pull failure and a rebase blocking the push stage. Everything
// else is logged and the run completes.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.logger.Info("starting sync",
		"root", e.cfg.Paths.Root,
		"pull", e.mode.Pull,
		"push", e.mode.Push,
		"writeback", e.mode.Writeback,
		"write_files", e.mode.WriteFiles)

	if e.mode.WriteFiles {
		for _, dir := range e.cfg.AllRoots() {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
	}

	// Pull: failure is fatal, nothing downstream may run against a tree in
	// an unknown state.
	if e.mode.Pull {
		if err := e.repo.Pull(ctx); err != nil {
			return nil, fmt.Errorf("pull failed: %w", err)
		}
	} else {
		e.logger.Info("pull disabled")
	}

	// Reconcile local edits against the pre-export snapshots. Local edits
	// get exactly this one run-window of authority before export
	// overwrites them.
	rec := reconcile.New(e.gateway, e.mode, e.logger, e.out)
	rec.Run(ctx, e.cfg.ScriptsRawDir(), e.cfg.ScriptsDir())

	tally := make(map[string]int)
	manifests := make(map[string]manifest.Set, 4)
	for _, root := range e.cfg.AllRoots() {
		manifests[root] = manifest.New()
	}

	exp := export.New(e.gateway, e.mode, e.logger)

	e.logger.Info("fetching user-defined scripts")
	var scripts []rmm.Definition
	for _, def := range e.gateway.ListScripts(ctx) {
		if def.ScriptType == userDefinedType {
			scripts = append(scripts, def)
		}
	}
	res := exp.Export(ctx, scripts, e.cfg.ScriptsDir(), e.cfg.ScriptsRawDir(), tally, false)
	manifests[e.cfg.ScriptsDir()].Merge(res.Editable)
	manifests[e.cfg.ScriptsRawDir()].Merge(res.Raw)
	exported := res.Count

	e.logger.Info("fetching snippets")
	snippets := e.gateway.ListSnippets(ctx)
	res = exp.Export(ctx, snippets, e.cfg.SnippetsDir(), e.cfg.SnippetsRawDir(), tally, true)
	manifests[e.cfg.SnippetsDir()].Merge(res.Editable)
	manifests[e.cfg.SnippetsRawDir()].Merge(res.Raw)
	exported += res.Count

	for _, root := range e.cfg.AllRoots() {
		prune.Files(root, manifests[root], !e.mode.WriteFiles, e.logger)
	}

	if e.mode.Push {
		if err := e.push(ctx); err != nil {
			// Exports and pruning are already on disk; only the rebase
			// guard escapes this stage.
			return nil, err
		}
	} else {
		e.logger.Info("push disabled")
	}

	report := &Report{Exported: exported, ShellTally: tally}
	e.logger.Info("sync completed", "exported", report.Exported)
	return report, nil
}

// push commits and pushes local changes. A rebase in progress is the only
// fatal outcome; every other git failure is logged and the run still
// reports success.
func (e *Engine) push(ctx context.Context) error {
	if e.repo.RebaseInProgress(ctx) {
		return gitrepo.ErrRebaseInProgress
	}

	branch, err := e.repo.CurrentBranch(ctx)
	if err != nil {
		e.logger.Error("failed to resolve current branch", "error", err)
		return nil
	}
	if branch == "" || branch == "HEAD" {
		branch = fallbackBranch
		if err := e.repo.CreateBranch(ctx, branch); err != nil {
			e.logger.Error("failed to create branch", "branch", branch, "error", err)
			return nil
		}
	}

	hasChanges, err := e.repo.HasChanges(ctx)
	if err != nil {
		e.logger.Error("failed to query working tree status", "error", err)
		return nil
	}
	if !hasChanges {
		e.logger.Info("no changes to commit")
		return nil
	}

	if err := e.repo.StageAll(ctx); err != nil {
		e.logger.Error("failed to stage changes", "error", err)
		return nil
	}

	changes, err := e.repo.DiffNameStatus(ctx)
	if err != nil {
		e.logger.Error("failed to list staged changes", "error", err)
		return nil
	}

	message := gitrepo.Summarize(changes, e.cfg.RawPrefixes())
	if err := e.repo.Commit(ctx, message); err != nil {
		e.logger.Error("commit failed", "error", err)
		return nil
	}
	e.logger.Info("committed changes", "branch", branch, "message", message)

	if err := e.repo.Push(ctx, branch); err != nil {
		e.logger.Error("push failed", "branch", branch, "error", err)
		return nil
	}
	e.logger.Info("pushed changes", "branch", branch)
	return nil
}
