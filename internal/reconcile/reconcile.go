// Package reconcile detects drift between the editable tree and the raw
// snapshot tree and pushes edited content back to the remote store. The
// direction is local-wins and one-shot: snapshots on disk are never touched
// here, they are refreshed by the export stage once the remote reflects the
// push.
package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/rmmtools/scriptsync/internal/config"
	"github.com/rmmtools/scriptsync/internal/naming"
	"github.com/rmmtools/scriptsync/internal/rmm"
)

// previewLines is how much of each side is shown when drift is found.
const previewLines = 10

// Updater is the gateway surface the reconciler needs.
type Updater interface {
	UpdateScript(ctx context.Context, id int64, payload rmm.Payload) error
}

// Reconciler compares raw snapshots with their paired editable files.
type Reconciler struct {
	updater Updater
	mode    config.RunMode
	logger  *slog.Logger
	out     io.Writer
}

// New creates a Reconciler. out receives the operator-facing drift previews;
// pass nil for os.Stdout.
func New(updater Updater, mode config.RunMode, logger *slog.Logger, out io.Writer) *Reconciler {
	if out == nil {
		out = os.Stdout
	}
	return &Reconciler{updater: updater, mode: mode, logger: logger, out: out}
}

// Run walks every JSON snapshot under rawRoot and reconciles it against its
// editable counterpart. Snapshots without a match are logged and skipped;
// push failures abandon that one file and the loop continues.
func (r *Reconciler) Run(ctx context.Context, rawRoot, editableRoot string) {
	r.logger.Info("comparing editable files with raw snapshots", "raw", rawRoot, "editable", editableRoot)

	files, err := naming.DiscoverFiles(rawRoot)
	if err != nil {
		r.logger.Warn("failed to scan raw snapshot tree", "root", rawRoot, "error", err)
		return
	}

	for _, rel := range files {
		if !strings.EqualFold(path.Ext(rel), ".json") {
			continue
		}
		r.reconcileFile(ctx, rawRoot, editableRoot, rel)
	}
}

func (r *Reconciler) reconcileFile(ctx context.Context, rawRoot, editableRoot, rel string) {
	bare := naming.BareStem(naming.Stem(rel))

	matchRel, ok := naming.FindEditableMatch(editableRoot, path.Dir(rel), bare)
	if !ok {
		r.logger.Info("no editable match for snapshot", "snapshot", rel)
		return
	}

	raw, err := os.ReadFile(filepath.Join(rawRoot, filepath.FromSlash(rel)))
	if err != nil {
		r.logger.Warn("failed to read snapshot", "snapshot", rel, "error", err)
		return
	}
	var payload rmm.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		r.logger.Warn("failed to decode snapshot", "snapshot", rel, "error", err)
		return
	}
	code := payload.String("code")

	fileBytes, err := os.ReadFile(filepath.Join(editableRoot, filepath.FromSlash(matchRel)))
	if err != nil {
		r.logger.Warn("failed to read editable file", "path", matchRel, "error", err)
		return
	}

	codeHash := sha256.Sum256([]byte(code))
	fileHash := sha256.Sum256(fileBytes)
	if codeHash == fileHash {
		r.logger.Debug("in sync", "editable", matchRel, "snapshot", rel)
		return
	}

	r.logger.Info("drift detected", "editable", matchRel, "snapshot", rel)
	r.printPreview(matchRel, string(fileBytes), code)

	id, ok := payload.Int64("id")
	if !ok {
		r.logger.Warn("snapshot has no id, cannot write back", "snapshot", rel)
		return
	}

	// The outgoing payload carries the edited content under script_body;
	// the code key is dropped, as the update endpoint expects.
	updated := payload.Clone()
	updated.Delete("code")
	updated.SetString("script_body", string(fileBytes))

	if !r.mode.Writeback {
		pretty, err := updated.Pretty()
		if err != nil {
			r.logger.Warn("failed to render payload preview", "snapshot", rel, "error", err)
			return
		}
		fmt.Fprintf(r.out, "would push update for %s (id %d):\n%s", matchRel, id, pretty)
		return
	}

	if err := r.updater.UpdateScript(ctx, id, updated); err != nil {
		r.logger.Error("writeback failed", "id", id, "editable", matchRel, "error", err)
		return
	}
	r.logger.Info("pushed local edit", "id", id, "editable", matchRel)
}

// printPreview shows the first lines of both sides so the operator can see
// what is about to be pushed.
func (r *Reconciler) printPreview(name, fileContent, snapshotCode string) {
	heading := color.New(color.FgCyan, color.Bold)

	_, _ = heading.Fprintf(r.out, "--- %s (first %d lines) ---\n", name, previewLines)
	fmt.Fprintln(r.out, firstLines(fileContent, previewLines))
	_, _ = heading.Fprintf(r.out, "--- snapshot code (first %d lines) ---\n", previewLines)
	fmt.Fprintln(r.out, firstLines(snapshotCode, previewLines))
}

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, "\n")
}
