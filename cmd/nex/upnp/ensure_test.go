// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nexutils/nex/lib/config"
	"github.com/nexutils/nex/upnp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadRulesWritesExampleOnFirstRun(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.UPnP.Rules = filepath.Join(t.TempDir(), "nex", "upnp-rules.conf")

	rules, created, err := loadRules("", cfg, discardLogger())
	if err != nil {
		t.Fatalf("loadRules: %v", err)
	}
	if !created {
		t.Fatal("loadRules did not report creating the example file")
	}
	if rules != nil {
		t.Errorf("rules = %v, want none", rules)
	}

	content, err := os.ReadFile(cfg.UPnP.Rules)
	if err != nil {
		t.Fatalf("reading example file: %v", err)
	}
	if string(content) != upnp.ExampleRules {
		t.Error("example file content does not match the template")
	}

	// The second run parses the example, which is all comments.
	rules, created, err = loadRules("", cfg, discardLogger())
	if err != nil {
		t.Fatalf("loadRules on existing file: %v", err)
	}
	if created {
		t.Error("loadRules recreated an existing file")
	}
	if len(rules) != 0 {
		t.Errorf("example file parsed to %d rules, want 0", len(rules))
	}
}

func TestLoadRulesExplicitPathMissing(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.UPnP.Rules = filepath.Join(t.TempDir(), "upnp-rules.conf")
	missing := filepath.Join(t.TempDir(), "nope.conf")

	_, created, err := loadRules(missing, cfg, discardLogger())
	if err == nil {
		t.Fatal("loadRules succeeded on a missing explicit path")
	}
	if created {
		t.Error("loadRules wrote an example for an explicit path")
	}
	if !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("error %q does not mention the missing file", err)
	}
	if _, statErr := os.Stat(missing); statErr == nil {
		t.Error("loadRules created the explicit file")
	}
}

func TestLoadRulesSkipsMalformedLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.conf")
	content := `# comment
22 2222 tcp
not a rule at all
8080 both
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.UPnP.Rules = path

	rules, created, err := loadRules("", cfg, discardLogger())
	if err != nil {
		t.Fatalf("loadRules: %v", err)
	}
	if created {
		t.Error("loadRules claimed to create an existing file")
	}
	if len(rules) != 2 {
		t.Fatalf("parsed %d rules, want 2", len(rules))
	}
	if rules[0].External != 2222 || rules[1].Protocol != upnp.ProtocolBoth {
		t.Errorf("unexpected rules: %v", rules)
	}
}
