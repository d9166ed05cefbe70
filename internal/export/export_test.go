package export

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/rmmtools/scriptsync/internal/config"
	"github.com/rmmtools/scriptsync/internal/rmm"
)

// mockFetcher implements DetailFetcher for testing.
type mockFetcher struct {
	details map[int64]rmm.Payload
	calls   []int64
}

func (m *mockFetcher) Download(_ context.Context, id int64) (rmm.Payload, bool) {
	m.calls = append(m.calls, id)
	p, ok := m.details[id]
	return p, ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func payload(t *testing.T, raw string) rmm.Payload {
	t.Helper()
	var p rmm.Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func definitions(t *testing.T, raw string) []rmm.Definition {
	t.Helper()
	var payloads []rmm.Payload
	if err := json.Unmarshal([]byte(raw), &payloads); err != nil {
		t.Fatal(err)
	}
	defs := make([]rmm.Definition, 0, len(payloads))
	for _, p := range payloads {
		defs = append(defs, rmm.DefinitionFromPayload(p))
	}
	return defs
}

func TestExportScript(t *testing.T) {
	editable := t.TempDir()
	raw := t.TempDir()

	fetcher := &mockFetcher{details: map[int64]rmm.Payload{
		42: payload(t, `{"id": 42, "code": "Write-Host hi", "category": "stale"}`),
	}}

	defs := definitions(t, `[{"id": 42, "name": "Update Agent", "category": "Maintenance", "shell": "powershell", "script_type": "userdefined"}]`)

	tally := make(map[string]int)
	exp := New(fetcher, config.DefaultRunMode(), testLogger())
	res := exp.Export(context.Background(), defs, editable, raw, tally, false)

	if res.Count != 1 {
		t.Fatalf("count = %d", res.Count)
	}
	if len(fetcher.calls) != 1 || fetcher.calls[0] != 42 {
		t.Errorf("detail calls = %v", fetcher.calls)
	}

	// Exactly one editable and one raw file, both manifest members.
	editableRel := "Maintenance/Update Agent.ps1"
	rawRel := "Maintenance/42 - Update Agent.json"
	if !res.Editable.Contains(editableRel) || res.Editable.Len() != 1 {
		t.Errorf("editable manifest = %v", res.Editable)
	}
	if !res.Raw.Contains(rawRel) || res.Raw.Len() != 1 {
		t.Errorf("raw manifest = %v", res.Raw)
	}

	code, err := os.ReadFile(filepath.Join(editable, filepath.FromSlash(editableRel)))
	if err != nil {
		t.Fatal(err)
	}
	if string(code) != "Write-Host hi" {
		t.Errorf("editable content = %q", code)
	}

	rawBytes, err := os.ReadFile(filepath.Join(raw, filepath.FromSlash(rawRel)))
	if err != nil {
		t.Fatal(err)
	}
	var snapshot rmm.Payload
	if err := json.Unmarshal(rawBytes, &snapshot); err != nil {
		t.Fatal(err)
	}

	// Summary fields win the merge: the list category replaces the stale
	// detail category.
	if got := snapshot.String("category"); got != "Maintenance" {
		t.Errorf("merged category = %q", got)
	}

	// Editable bytes hash-equal the snapshot code.
	if sha256.Sum256(code) != sha256.Sum256([]byte(snapshot.String("code"))) {
		t.Error("editable bytes and snapshot code diverge after export")
	}

	// Tally counts scripts per shell.
	if tally["powershell"] != 1 {
		t.Errorf("tally = %v", tally)
	}
}

func TestExportSnippet(t *testing.T) {
	editable := t.TempDir()
	raw := t.TempDir()

	defs := definitions(t, `[{"id": 9, "name": "Banner", "shell": "python", "code": "print('hi')"}]`)

	tally := make(map[string]int)
	exp := New(&mockFetcher{}, config.DefaultRunMode(), testLogger())
	res := exp.Export(context.Background(), defs, editable, raw, tally, true)

	// Snippets skip the detail fetch, the tally, and the id prefix.
	if !res.Editable.Contains("Banner.py") {
		t.Errorf("editable manifest = %v", res.Editable)
	}
	if !res.Raw.Contains("Banner.json") {
		t.Errorf("raw manifest = %v", res.Raw)
	}
	if len(tally) != 0 {
		t.Errorf("snippets must not be tallied: %v", tally)
	}

	code, err := os.ReadFile(filepath.Join(editable, "Banner.py"))
	if err != nil {
		t.Fatal(err)
	}
	if string(code) != "print('hi')" {
		t.Errorf("snippet content = %q", code)
	}
}

func TestExportExtensionDefault(t *testing.T) {
	// Unknown shells fall back to .txt.
	editable := t.TempDir()
	raw := t.TempDir()

	fetcher := &mockFetcher{details: map[int64]rmm.Payload{
		1: payload(t, `{"id": 1, "code": "x"}`),
	}}
	defs := definitions(t, `[{"id": 1, "name": "Odd", "shell": "lua"}]`)

	res := New(fetcher, config.DefaultRunMode(), testLogger()).
		Export(context.Background(), defs, editable, raw, map[string]int{}, false)

	if !res.Editable.Contains("Odd.txt") {
		t.Errorf("editable manifest = %v", res.Editable)
	}
}

func TestExportSkipsFailedDetail(t *testing.T) {
	editable := t.TempDir()
	raw := t.TempDir()

	fetcher := &mockFetcher{details: map[int64]rmm.Payload{}} // every fetch fails
	defs := definitions(t, `[{"id": 5, "name": "Gone", "shell": "python"}]`)

	res := New(fetcher, config.DefaultRunMode(), testLogger()).
		Export(context.Background(), defs, editable, raw, map[string]int{}, false)

	if res.Count != 0 || res.Editable.Len() != 0 || res.Raw.Len() != 0 {
		t.Errorf("failed detail fetch must skip the definition: %+v", res)
	}

	files, err := os.ReadDir(editable)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("no files expected, got %d", len(files))
	}
}

func TestExportDryRun(t *testing.T) {
	editable := t.TempDir()
	raw := t.TempDir()

	defs := definitions(t, `[{"id": 9, "name": "Banner", "shell": "python", "code": "print('hi')"}]`)

	mode := config.RunMode{} // WriteFiles off
	res := New(&mockFetcher{}, mode, testLogger()).
		Export(context.Background(), defs, editable, raw, map[string]int{}, true)

	// Manifest is built from intended writes so pruning stays correct.
	if !res.Editable.Contains("Banner.py") || !res.Raw.Contains("Banner.json") {
		t.Errorf("dry run must still record manifest members: %+v", res)
	}

	if _, err := os.Stat(filepath.Join(editable, "Banner.py")); !os.IsNotExist(err) {
		t.Error("dry run must not write files")
	}
}

func TestExportOverwritesUnconditionally(t *testing.T) {
	editable := t.TempDir()
	raw := t.TempDir()

	path := filepath.Join(editable, "Banner.py")
	if err := os.WriteFile(path, []byte("local edit"), 0644); err != nil {
		t.Fatal(err)
	}

	defs := definitions(t, `[{"id": 9, "name": "Banner", "shell": "python", "code": "remote code"}]`)
	New(&mockFetcher{}, config.DefaultRunMode(), testLogger()).
		Export(context.Background(), defs, editable, raw, map[string]int{}, true)

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "remote code" {
		t.Errorf("export must overwrite local edits, got %q", got)
	}
}
