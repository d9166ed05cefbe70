// Package prune removes on-disk entries absent from the run manifest.
package prune

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rmmtools/scriptsync/internal/manifest"
)

// Files deletes every file under root whose relative path is not a member of
// keep, then removes directories left empty, deepest first. Deletion errors
// are logged and skipped. Dry runs log intentions and remove nothing.
// Dotfiles and dot-directories are never touched.
func Files(root string, keep manifest.Set, dryRun bool, logger *slog.Logger) {
	logger.Info("pruning", "root", root, "expected", keep.Len())

	files, dirs, err := scan(root)
	if err != nil {
		logger.Warn("failed to scan root for pruning", "root", root, "error", err)
		return
	}

	for _, rel := range files {
		if keep.Contains(rel) {
			continue
		}
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if dryRun {
			logger.Info("would delete file", "path", abs)
			continue
		}
		if err := os.Remove(abs); err != nil {
			logger.Warn("failed to delete file", "path", abs, "error", err)
			continue
		}
		logger.Info("deleted file", "path", abs)
	}

	if dryRun {
		return
	}

	// Directories can only be known empty once every file deletion in their
	// subtree has completed, hence the second pass, deepest first.
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], "/") > strings.Count(dirs[j], "/")
	})
	for _, rel := range dirs {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		entries, err := os.ReadDir(abs)
		if err != nil {
			logger.Warn("failed to read directory", "path", abs, "error", err)
			continue
		}
		if len(entries) > 0 {
			continue
		}
		if err := os.Remove(abs); err != nil {
			logger.Warn("failed to remove empty directory", "path", abs, "error", err)
			continue
		}
		logger.Info("removed empty directory", "path", abs)
	}
}

// scan lists files and directories under root as slash-relative paths,
// skipping hidden entries. A missing root yields empty listings.
func scan(root string) (files, dirs []string, err error) {
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipAll
			}
			return err
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			dirs = append(dirs, filepath.ToSlash(rel))
		} else {
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return files, dirs, nil
}
