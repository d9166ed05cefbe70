// Package naming maps definitions across the three namespaces this tool
// manages: the remote store (display names), the editable tree (sanitized
// code files) and the raw snapshot tree (sanitized JSON files carrying the
// remote id in their stem).
package naming

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// extensions maps a definition's shell field to the editable file extension.
var extensions = map[string]string{
	"powershell": ".ps1",
	"python":     ".py",
	"cmd":        ".bat",
	"shell":      ".sh",
	"nushell":    ".nu",
}

// idPrefix matches the "{id} - " stem prefix raw script snapshots carry.
var idPrefix = regexp.MustCompile(`^\d+ - `)

// invalidChars are dropped from names so the result is valid on common
// filesystems (Windows is the strictest).
const invalidChars = `/\:*?"<>|`

// ExtensionForShell returns the editable file extension for a shell type,
// defaulting to .txt for unknown shells.
func ExtensionForShell(shell string) string {
	if ext, ok := extensions[shell]; ok {
		return ext
	}
	return ".txt"
}

// Sanitize converts a definition name into a filesystem-safe name. It is
// deterministic and drops rather than replaces offending characters; two
// names that differ only in case still collide, which callers must tolerate.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(invalidChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	// Trailing dots and spaces are invalid on Windows.
	out := strings.TrimRight(strings.TrimSpace(b.String()), " .")
	if out == "" {
		return "unnamed"
	}
	return out
}

// BareStem strips the "{id} - " prefix from a raw snapshot file stem and
// lowercases the remainder, yielding the name used to locate the paired
// editable file.
func BareStem(stem string) string {
	return strings.ToLower(idPrefix.ReplaceAllString(stem, ""))
}

// Stem returns the base name of rel without its extension.
func Stem(rel string) string {
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FindEditableMatch locates the editable file paired with a raw snapshot.
// bare is the snapshot's BareStem; rawDir is the snapshot's directory
// relative to the raw root (its sanitized category). Matching is
// case-insensitive on the stem and ignores folder and extension. When
// several files match, a file in the same category directory wins, then the
// lexicographically smallest relative path.
func FindEditableMatch(editableRoot, rawDir, bare string) (string, bool) {
	files, err := DiscoverFiles(editableRoot)
	if err != nil {
		return "", false
	}

	var matches []string
	for _, rel := range files {
		if strings.ToLower(Stem(rel)) == bare {
			matches = append(matches, rel)
		}
	}
	if len(matches) == 0 {
		return "", false
	}

	for _, rel := range matches {
		if filepath.ToSlash(filepath.Dir(rel)) == rawDir {
			return rel, true
		}
	}
	// DiscoverFiles returns sorted paths, so the first match is the
	// lexicographically smallest.
	return matches[0], true
}

// DiscoverFiles returns the sorted slash-relative paths of every regular
// file under root. Hidden files and directories (names starting with ".")
// are skipped so VCS metadata is never touched. A missing root yields an
// empty listing.
func DiscoverFiles(root string) ([]string, error) {
	var files []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipAll
			}
			return err
		}

		if path != root && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.IsDir() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
