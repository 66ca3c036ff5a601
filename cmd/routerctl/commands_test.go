package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/flags"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("FLAG_CATALOG_PATH", "")
	t.Setenv("APP_ENV", "development")

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func requireContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, out)
	}
}

func TestPathCommandJSON(t *testing.T) {
	out, err := runCLI(t, "path", "brief.pdf", "--json",
		"--org", "org-1", "--user", "user-1",
		"--campaign", "c1", "--project", "p1", "--project-name", "Launch",
	)
	if err != nil {
		t.Fatalf("path: %v", err)
	}

	var resp struct {
		Path          string               `json:"path"`
		StorageConfig domain.StorageConfig `json:"storageConfig"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if !strings.HasPrefix(resp.Path, "organizations/org-1/media/") || !strings.HasSuffix(resp.Path, "_brief.pdf") {
		t.Fatalf("unexpected path %q", resp.Path)
	}
	if !resp.StorageConfig.IsOrganized {
		t.Fatalf("expected organized storage for a selected project")
	}
}

func TestPathCommandRejectsUnknownType(t *testing.T) {
	if _, err := runCLI(t, "path", "a.png", "--org", "org-1", "--type", "hologram"); err == nil {
		t.Fatalf("expected unknown upload type to fail")
	}
}

func TestFlagsCommandFiltersFeatures(t *testing.T) {
	out, err := runCLI(t, "flags", flags.FlagUseSmartRouter, "--json", "--user", "user-1", "--org", "org-1")
	if err != nil {
		t.Fatalf("flags: %v", err)
	}

	var decisions map[string]flags.Decision
	if err := json.Unmarshal([]byte(out), &decisions); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(decisions) != 1 {
		t.Fatalf("expected one decision, got %d", len(decisions))
	}
	if _, ok := decisions[flags.FlagUseSmartRouter]; !ok {
		t.Fatalf("expected %s in output, got %v", flags.FlagUseSmartRouter, decisions)
	}
}

func TestFlagsCommandTable(t *testing.T) {
	out, err := runCLI(t, "flags", "--user", "user-1")
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	requireContains(t, out, "FEATURE")
	requireContains(t, out, flags.FlagUseSmartRouter)
}

func TestCatalogValidateAcceptsEmbeddedCatalog(t *testing.T) {
	out, err := runCLI(t, "catalog", "validate")
	if err != nil {
		t.Fatalf("catalog validate: %v", err)
	}
	requireContains(t, out, "Catalog valid")
}

func TestCatalogValidateReportsUnknownDependency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yaml")
	body := "version: 1\nflags:\n  - name: a\n    group: core\n    dependsOn: [missing]\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	_, err := runCLI(t, "catalog", "validate", path)
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	if !strings.Contains(err.Error(), "unknown flag missing") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSanitizeCommand(t *testing.T) {
	out, err := runCLI(t, "sanitize", "")
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if strings.TrimSpace(out) != "unnamed-file" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRecoverCommandJSON(t *testing.T) {
	out, err := runCLI(t, "recover", "INVALID_FILENAME", "--json",
		"--category", "validation", "--details", `{"fileName":"a/b?.png"}`,
	)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}

	var decision domain.RecoveryDecision
	if err := json.Unmarshal([]byte(out), &decision); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if decision.Strategy != domain.StrategyAutoRename {
		t.Fatalf("expected auto rename, got %q", decision.Strategy)
	}
}

func TestRecoverCommandRejectsBadDetails(t *testing.T) {
	if _, err := runCLI(t, "recover", "CONNECTION_TIMEOUT", "--category", "network", "--details", "{"); err == nil {
		t.Fatalf("expected malformed details to fail")
	}
}
