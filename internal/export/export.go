// Package export converts remote definitions into editable code files and
// raw JSON snapshot files, and builds the manifest of paths the run expects
// to exist. Files are overwritten unconditionally; local edits get their run
// of authority earlier, in the reconcile stage.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/rmmtools/scriptsync/internal/config"
	"github.com/rmmtools/scriptsync/internal/manifest"
	"github.com/rmmtools/scriptsync/internal/naming"
	"github.com/rmmtools/scriptsync/internal/rmm"
)

// DetailFetcher is the gateway surface the exporter needs: the per-script
// download endpoint.
type DetailFetcher interface {
	Download(ctx context.Context, id int64) (rmm.Payload, bool)
}

// Exporter writes definitions to an editable root and a raw snapshot root.
type Exporter struct {
	fetcher DetailFetcher
	mode    config.RunMode
	logger  *slog.Logger
}

// Result is the manifest subset and definition count of one Export call.
type Result struct {
	Editable manifest.Set
	Raw      manifest.Set
	Count    int
}

// New creates an Exporter. In dry mode (mode.WriteFiles false) writes are
// logged as intentions and the manifest is still populated.
func New(fetcher DetailFetcher, mode config.RunMode, logger *slog.Logger) *Exporter {
	return &Exporter{fetcher: fetcher, mode: mode, logger: logger}
}

// Export writes one editable file and one raw snapshot file per definition.
// For scripts the full payload is fetched through the gateway; a failed
// fetch skips that definition. tally counts shell usage for scripts only.
// File-level errors are logged and the definition is skipped; they never
// abort the batch.
func (e *Exporter) Export(ctx context.Context, defs []rmm.Definition, editableRoot, rawRoot string, tally map[string]int, snippet bool) Result {
	kind := "scripts"
	if snippet {
		kind = "snippets"
	}
	e.logger.Info("exporting definitions", "kind", kind, "count", len(defs))

	res := Result{Editable: manifest.New(), Raw: manifest.New()}

	for _, def := range defs {
		name := naming.Sanitize(def.Name)
		category := ""
		if def.Category != "" {
			category = naming.Sanitize(def.Category)
		}

		detail := def.Raw
		if !snippet {
			d, ok := e.fetcher.Download(ctx, def.ID)
			if !ok {
				e.logger.Warn("skipping script, detail fetch failed", "id", def.ID, "name", def.Name)
				continue
			}
			detail = d
		}

		ext := naming.ExtensionForShell(def.Shell)
		if !snippet {
			tally[def.Shell]++
		}

		editableRel := path.Join(category, name+ext)
		rawName := name + ".json"
		if !snippet {
			rawName = fmt.Sprintf("%d - %s.json", def.ID, name)
		}
		rawRel := path.Join(category, rawName)

		if res.Editable.Contains(editableRel) {
			// Two sanitized names collided within this run; the later
			// definition wins.
			e.logger.Warn("sanitized name collision", "path", editableRel, "name", def.Name)
		}

		merged := rmm.MergePayloads(detail, def.Raw)
		rawBytes, err := merged.Pretty()
		if err != nil {
			e.logger.Warn("skipping definition, payload not encodable", "name", def.Name, "error", err)
			continue
		}

		if err := e.writeFile(filepath.Join(editableRoot, filepath.FromSlash(editableRel)), []byte(detail.String("code"))); err != nil {
			e.logger.Warn("failed to write editable file", "path", editableRel, "error", err)
		}
		if err := e.writeFile(filepath.Join(rawRoot, filepath.FromSlash(rawRel)), rawBytes); err != nil {
			e.logger.Warn("failed to write raw snapshot", "path", rawRel, "error", err)
		}

		// Manifest membership is recorded from intended writes, so pruning
		// stays correct on dry runs and after write failures.
		res.Editable.Add(editableRel)
		res.Raw.Add(rawRel)
		res.Count++
	}

	e.logger.Info("export finished", "kind", kind, "exported", res.Count)
	return res
}

// writeFile atomically writes data via a temp file in the target directory.
// In dry mode it only logs the intention.
func (e *Exporter) writeFile(dest string, data []byte) error {
	if !e.mode.WriteFiles {
		e.logger.Info("would write file", "path", dest)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".scriptsync-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return err
	}

	e.logger.Debug("wrote file", "path", dest)
	return nil
}
