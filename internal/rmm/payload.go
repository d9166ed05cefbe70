package rmm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Payload is a decoded JSON object that preserves every field the remote
// store returned, including ones this tool has no schema for. Raw snapshot
// files are written from Payloads so nothing the API sends is lost.
type Payload map[string]json.RawMessage

// String returns the string value at key, or "" when the key is absent or
// not a JSON string.
func (p Payload) String(key string) string {
	raw, ok := p[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Int64 returns the integer value at key.
func (p Payload) Int64(key string) (int64, bool) {
	raw, ok := p[key]
	if !ok {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

// SetString stores value at key as a JSON string.
func (p Payload) SetString(key, value string) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	p[key] = raw
}

// Delete removes key from the payload.
func (p Payload) Delete(key string) {
	delete(p, key)
}

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Pretty renders the payload as indented JSON without HTML escaping. Keys
// are emitted in sorted order, so output is stable across runs for the same
// input. The result ends with a newline.
func (p Payload) Pretty() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MergePayloads combines a detail fetch with its list-level summary record.
// Summary fields win on key collision: list-level fields such as category
// and shell are considered more current than a possibly stale detail fetch.
func MergePayloads(detail, summary Payload) Payload {
	out := make(Payload, len(detail)+len(summary))
	for k, v := range detail {
		out[k] = v
	}
	for k, v := range summary {
		out[k] = v
	}
	return out
}

// Definition is the typed view of a list-level script or snippet record.
// Raw keeps the full record for snapshot merging.
type Definition struct {
	ID         int64
	Name       string
	Category   string
	Shell      string
	ScriptType string
	Raw        Payload
}

// DefinitionFromPayload extracts the typed fields of a list record.
func DefinitionFromPayload(p Payload) Definition {
	d := Definition{Raw: p}
	d.ID, _ = p.Int64("id")
	d.Name = p.String("name")
	if d.Name == "" {
		d.Name = "Unnamed Script"
	}
	d.Category = strings.TrimSpace(p.String("category"))
	d.Shell = p.String("shell")
	d.ScriptType = p.String("script_type")
	return d
}
