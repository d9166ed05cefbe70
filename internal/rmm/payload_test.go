package rmm

import (
	"bytes"
	"encoding/json"
	"testing"
)

func parsePayload(t *testing.T, raw string) Payload {
	t.Helper()
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPayloadAccessors(t *testing.T) {
	p := parsePayload(t, `{"id": 42, "name": "Update Agent", "hidden": true}`)

	if got := p.String("name"); got != "Update Agent" {
		t.Errorf("String(name) = %q", got)
	}
	if got := p.String("missing"); got != "" {
		t.Errorf("String(missing) = %q", got)
	}
	if got := p.String("id"); got != "" {
		t.Errorf("String on non-string should be empty, got %q", got)
	}

	id, ok := p.Int64("id")
	if !ok || id != 42 {
		t.Errorf("Int64(id) = %d, %v", id, ok)
	}
	if _, ok := p.Int64("name"); ok {
		t.Error("Int64 on string should fail")
	}
}

func TestPayloadCloneAndMutate(t *testing.T) {
	p := parsePayload(t, `{"code": "Write-Host hi", "id": 1}`)

	clone := p.Clone()
	clone.Delete("code")
	clone.SetString("script_body", "Write-Host bye")

	if p.String("code") != "Write-Host hi" {
		t.Error("mutating the clone changed the original")
	}
	if clone.String("script_body") != "Write-Host bye" {
		t.Errorf("script_body = %q", clone.String("script_body"))
	}
	if _, ok := clone["code"]; ok {
		t.Error("code should be deleted from the clone")
	}
}

func TestMergePayloadsSummaryWins(t *testing.T) {
	detail := parsePayload(t, `{"code": "detail code", "category": "stale", "only_detail": 1}`)
	summary := parsePayload(t, `{"category": "fresh", "shell": "python"}`)

	merged := MergePayloads(detail, summary)

	if got := merged.String("category"); got != "fresh" {
		t.Errorf("summary must win on collision, got %q", got)
	}
	if got := merged.String("code"); got != "detail code" {
		t.Errorf("detail-only field lost: %q", got)
	}
	if _, ok := merged.Int64("only_detail"); !ok {
		t.Error("detail-only field missing")
	}
	if got := merged.String("shell"); got != "python" {
		t.Errorf("summary-only field missing: %q", got)
	}
}

func TestPrettyStableAndUnescaped(t *testing.T) {
	p := parsePayload(t, `{"b": "x < y", "a": 1}`)

	first, err := p.Pretty()
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Pretty()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("Pretty output is not stable")
	}
	if !bytes.Contains(first, []byte("x < y")) {
		t.Errorf("HTML escaping should be off: %s", first)
	}
	if !bytes.HasSuffix(first, []byte("\n")) {
		t.Error("Pretty output should end with a newline")
	}
}

func TestDefinitionFromPayload(t *testing.T) {
	p := parsePayload(t, `{"id": 7, "name": "Cleanup", "category": " Maintenance ", "shell": "powershell", "script_type": "userdefined"}`)
	d := DefinitionFromPayload(p)

	if d.ID != 7 || d.Name != "Cleanup" || d.Category != "Maintenance" || d.Shell != "powershell" || d.ScriptType != "userdefined" {
		t.Errorf("unexpected definition: %+v", d)
	}

	// Missing name gets a placeholder.
	d = DefinitionFromPayload(parsePayload(t, `{"id": 8}`))
	if d.Name != "Unnamed Script" {
		t.Errorf("expected placeholder name, got %q", d.Name)
	}
}
