//go:build integration

// Package integration exercises the full sync pipeline against a local git
// upstream and an in-process fake of the RMM API.
package integration

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rmmtools/scriptsync/internal/config"
)

// script is one remote definition held by the fake API. Code is served by the
// download endpoint only, matching the real API's summary/detail split.
type script struct {
	ID         int64
	Name       string
	Category   string
	Shell      string
	ScriptType string
	Code       string
}

// snippet records are served whole from the list endpoint.
type snippet struct {
	ID    int64
	Name  string
	Shell string
	Code  string
}

// fakeRMM is a minimal stand-in for the remote script store.
type fakeRMM struct {
	mu       sync.Mutex
	scripts  map[int64]*script
	snippets map[int64]*snippet
	updates  []int64
}

func newFakeRMM() *fakeRMM {
	return &fakeRMM{
		scripts:  make(map[int64]*script),
		snippets: make(map[int64]*snippet),
	}
}

func (f *fakeRMM) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/scripts/snippets/", f.handleSnippets)
	mux.HandleFunc("/scripts/", f.handleScripts)
	return mux
}

func (f *fakeRMM) handleSnippets(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	list := make([]map[string]any, 0, len(f.snippets))
	for _, s := range f.snippets {
		list = append(list, map[string]any{
			"id": s.ID, "name": s.Name, "shell": s.Shell, "code": s.Code,
		})
	}
	writeJSON(w, list)
}

func (f *fakeRMM) handleScripts(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/scripts/"), "/")

	// GET /scripts/ lists summaries without code.
	if rest == "" {
		list := make([]map[string]any, 0, len(f.scripts))
		for _, s := range f.scripts {
			list = append(list, map[string]any{
				"id": s.ID, "name": s.Name, "category": s.Category,
				"shell": s.Shell, "script_type": s.ScriptType,
			})
		}
		writeJSON(w, list)
		return
	}

	// GET /scripts/{id}/download/ serves the detail payload.
	if strings.HasSuffix(rest, "/download") {
		id, err := strconv.ParseInt(strings.TrimSuffix(rest, "/download"), 10, 64)
		if err != nil {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}
		s, ok := f.scripts[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{"id": s.ID, "code": s.Code})
		return
	}

	// PUT /scripts/{id}/ applies a writeback.
	if r.Method == http.MethodPut {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}
		s, ok := f.scripts[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		body, ok := payload["script_body"].(string)
		if !ok {
			http.Error(w, "missing script_body", http.StatusBadRequest)
			return
		}
		s.Code = body
		f.updates = append(f.updates, id)
		w.WriteHeader(http.StatusOK)
		return
	}

	http.NotFound(w, r)
}

func (f *fakeRMM) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// harness wires a fake API, a git upstream and a clone into a ready-to-run
// configuration.
type harness struct {
	rmm      *fakeRMM
	api      *httptest.Server
	upstream string
	clone    string
	cfg      *config.Config
	logger   *slog.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	fake := newFakeRMM()
	api := httptest.NewServer(fake.handler())
	t.Cleanup(api.Close)

	upstream := t.TempDir()
	gitRun(t, "", "init", "-b", "main", upstream)
	gitRun(t, upstream, "config", "user.email", "test@test.com")
	gitRun(t, upstream, "config", "user.name", "Test")
	gitRun(t, upstream, "config", "receive.denyCurrentBranch", "updateInstead")
	if err := os.WriteFile(filepath.Join(upstream, "README.md"), []byte("script repo\n"), 0644); err != nil {
		t.Fatal(err)
	}
	gitRun(t, upstream, "add", "README.md")
	gitRun(t, upstream, "commit", "-m", "initial")

	clone := filepath.Join(t.TempDir(), "clone")
	gitRun(t, "", "clone", upstream, clone)
	gitRun(t, clone, "config", "user.email", "test@test.com")
	gitRun(t, clone, "config", "user.name", "Test")

	cfg := &config.Config{
		API:   config.APIConfig{Domain: api.URL, Token: "test-token"},
		Paths: config.PathsConfig{Root: clone},
	}

	return &harness{
		rmm:      fake,
		api:      api,
		upstream: upstream,
		clone:    clone,
		cfg:      cfg,
		logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
}

// upstreamHead returns the upstream HEAD commit hash.
func (h *harness) upstreamHead(t *testing.T) string {
	t.Helper()
	return gitRun(t, h.upstream, "rev-parse", "HEAD")
}

// upstreamMessage returns the upstream HEAD commit subject.
func (h *harness) upstreamMessage(t *testing.T) string {
	t.Helper()
	return gitRun(t, h.upstream, "log", "-1", "--pretty=%s")
}

// commitAndPush commits everything in the clone and pushes it upstream, as an
// operator editing scripts would.
func (h *harness) commitAndPush(t *testing.T, msg string) {
	t.Helper()
	gitRun(t, h.clone, "add", ".")
	gitRun(t, h.clone, "commit", "-m", msg)
	gitRun(t, h.clone, "push", "origin", "main")
}

func gitRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func fileContent(t *testing.T, parts ...string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(parts...))
	if err != nil {
		t.Fatalf("read %v: %v", parts, err)
	}
	return string(data)
}

func mustNotExist(t *testing.T, parts ...string) {
	t.Helper()
	path := filepath.Join(parts...)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("%s should not exist (err=%v)", path, err)
	}
}
