// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"bytes"
	"strings"
	"testing"
)

func scripted(input string) (*Prompter, *bytes.Buffer) {
	var out bytes.Buffer
	return &Prompter{In: strings.NewReader(input), Out: &out}, &out
}

func TestConfirm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		def   bool
		want  bool
	}{
		{"yes", "y\n", false, true},
		{"yes full word", "yes\n", false, true},
		{"uppercase", "Y\n", false, true},
		{"no", "n\n", true, false},
		{"empty takes default true", "\n", true, true},
		{"empty takes default false", "\n", false, false},
		{"garbage is no", "whatever\n", true, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, _ := scripted(test.input)
			got, err := p.Confirm("proceed?", test.def)
			if err != nil {
				t.Fatalf("Confirm: %v", err)
			}
			if got != test.want {
				t.Errorf("Confirm(%q, def=%v) = %v, want %v", test.input, test.def, got, test.want)
			}
		})
	}
}

func TestConfirm_ShowsDefaultHint(t *testing.T) {
	t.Parallel()

	p, out := scripted("\n")
	if _, err := p.Confirm("delete everything?", false); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !strings.Contains(out.String(), "[y/N]") {
		t.Errorf("prompt %q missing [y/N] hint", out.String())
	}
}

func TestLine(t *testing.T) {
	t.Parallel()

	t.Run("answer", func(t *testing.T) {
		p, _ := scripted("my-service\n")
		got, err := p.Line("unit name", "")
		if err != nil {
			t.Fatalf("Line: %v", err)
		}
		if got != "my-service" {
			t.Errorf("Line = %q, want my-service", got)
		}
	})

	t.Run("empty takes fallback", func(t *testing.T) {
		p, _ := scripted("\n")
		got, err := p.Line("unit name", "default-name")
		if err != nil {
			t.Fatalf("Line: %v", err)
		}
		if got != "default-name" {
			t.Errorf("Line = %q, want default-name", got)
		}
	})

	t.Run("whitespace stripped", func(t *testing.T) {
		p, _ := scripted("  spaced  \n")
		got, err := p.Line("unit name", "")
		if err != nil {
			t.Fatalf("Line: %v", err)
		}
		if got != "spaced" {
			t.Errorf("Line = %q, want spaced", got)
		}
	})
}

func TestTyped(t *testing.T) {
	t.Parallel()

	t.Run("exact match", func(t *testing.T) {
		p, _ := scripted("destroy sda\n")
		if err := p.Typed("about to overwrite /dev/sda", "destroy sda"); err != nil {
			t.Errorf("Typed: %v", err)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		p, _ := scripted("y\n")
		if err := p.Typed("about to overwrite /dev/sda", "destroy sda"); err == nil {
			t.Error("Typed accepted a wrong phrase")
		}
	})
}

func TestSecret_NonTerminalFallsBackToLine(t *testing.T) {
	t.Parallel()

	p, _ := scripted("hunter2\n")
	got, err := p.Secret("API token")
	if err != nil {
		t.Fatalf("Secret: %v", err)
	}
	if got != "hunter2" {
		t.Errorf("Secret = %q, want hunter2", got)
	}
}
