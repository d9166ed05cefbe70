package gitrepo

import (
	"fmt"
	"strings"
)

// fallbackMessage is used when every staged change sits in a raw snapshot
// tree. Raw-only changes are still committed, just under this generic
// message.
const fallbackMessage = "Minor update"

// maxSummaryPaths caps how many paths one clause lists before "...".
const maxSummaryPaths = 5

// summary categories in render order.
var categories = []struct {
	letter byte
	label  string
}{
	{'A', "created"},
	{'M', "modified"},
	{'D', "deleted"},
	{'R', "renamed"},
}

// Summarize builds a one-line commit message from staged changes. Paths
// under any of the exclude directory prefixes are dropped first; remaining
// changes are grouped by status letter into clauses like
// "created 2: a.ps1, b.py", joined with "; ". Renames render as "old -> new".
func Summarize(changes []Change, exclude []string) string {
	grouped := make(map[byte][]string)
	for _, c := range changes {
		if c.Status == "" || isExcluded(c.Path, exclude) {
			continue
		}
		entry := c.Path
		if c.Status[0] == 'R' && c.RenamedTo != "" {
			entry = c.Path + " -> " + c.RenamedTo
		}
		grouped[c.Status[0]] = append(grouped[c.Status[0]], entry)
	}

	var parts []string
	for _, cat := range categories {
		files := grouped[cat.letter]
		if len(files) == 0 {
			continue
		}
		shown := files
		suffix := ""
		if len(files) > maxSummaryPaths {
			shown = files[:maxSummaryPaths]
			suffix = "..."
		}
		parts = append(parts, fmt.Sprintf("%s %d: %s%s", cat.label, len(files), strings.Join(shown, ", "), suffix))
	}

	if len(parts) == 0 {
		return fallbackMessage
	}
	return strings.Join(parts, "; ")
}

func isExcluded(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}
