package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DOMAIN", "")
	t.Setenv("API_TOKEN", "")
	t.Setenv("SCRIPTPATH", "")
}

func TestLoadValidConfig(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	path := writeConfig(t, `
api:
  domain: "https://rmm.example.com"
  token: "abc123"
paths:
  root: "`+root+`"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.Domain != "https://rmm.example.com" {
		t.Errorf("domain = %q", cfg.API.Domain)
	}
	if cfg.Paths.Root != root {
		t.Errorf("root = %q", cfg.Paths.Root)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	root := t.TempDir()
	t.Setenv("DOMAIN", "https://rmm.example.com")
	t.Setenv("API_TOKEN", "tok")
	t.Setenv("SCRIPTPATH", root)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.Token != "tok" || cfg.Paths.Root != root {
		t.Errorf("environment not applied: %+v", cfg)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	t.Setenv("MY_TOKEN", "expanded")

	cfg, err := Load(writeConfig(t, `
api:
  domain: "https://rmm.example.com"
  token: "${MY_TOKEN}"
paths:
  root: "`+root+`"
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.Token != "expanded" {
		t.Errorf("token = %q", cfg.API.Token)
	}
}

func TestValidationErrors(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()

	for _, tc := range []struct {
		name string
		yaml string
	}{
		{"missing domain", "api:\n  token: t\npaths:\n  root: " + root},
		{"missing token", "api:\n  domain: d\npaths:\n  root: " + root},
		{"missing root", "api:\n  domain: d\n  token: t"},
		{"relative root", "api:\n  domain: d\n  token: t\npaths:\n  root: relative/path"},
		{"serve without addr", `
api: {domain: d, token: t}
paths: {root: ` + root + `}
serve: {enabled: true, webhook_secret_file: /tmp/secret}
`},
		{"serve without secret", `
api: {domain: d, token: t}
paths: {root: ` + root + `}
serve: {enabled: true, listen_addr: ":8080"}
`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := &Config{Paths: PathsConfig{Root: "/var/rmm-repo"}}

	roots := cfg.AllRoots()
	want := []string{
		filepath.Join("/var/rmm-repo", "scripts"),
		filepath.Join("/var/rmm-repo", "scriptsraw"),
		filepath.Join("/var/rmm-repo", "snippets"),
		filepath.Join("/var/rmm-repo", "snippetsraw"),
	}
	if len(roots) != len(want) {
		t.Fatalf("roots = %v", roots)
	}
	for i := range want {
		if roots[i] != want[i] {
			t.Errorf("roots[%d] = %q, want %q", i, roots[i], want[i])
		}
	}

	prefixes := cfg.RawPrefixes()
	if len(prefixes) != 2 || prefixes[0] != "scriptsraw" || prefixes[1] != "snippetsraw" {
		t.Errorf("raw prefixes = %v", prefixes)
	}
}

func TestDefaultRunMode(t *testing.T) {
	mode := DefaultRunMode()
	if !mode.Pull || !mode.Push || !mode.Writeback || !mode.WriteFiles {
		t.Errorf("default mode should enable everything: %+v", mode)
	}

	var zero RunMode
	if zero.Pull || zero.Push || zero.Writeback || zero.WriteFiles {
		t.Errorf("zero mode should disable everything: %+v", zero)
	}
}
