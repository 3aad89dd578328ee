// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt implements the interactive questions nex commands ask
// before doing anything destructive or privileged: yes/no confirmation,
// free-form lines, typed confirmation phrases, and secrets with echo
// disabled.
//
// A [Prompter] reads from an injected reader and writes to an injected
// writer so tests can script conversations; [New] wires up stdin/stderr
// for real use. Prompts go to stderr so command output on stdout stays
// clean for pipelines.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotInteractive is returned when a prompt is required but the input
// is not a terminal and no scripted answer is available.
var ErrNotInteractive = fmt.Errorf("input is not a terminal")

// Prompter asks questions on Out and reads answers from In.
type Prompter struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// New returns a Prompter wired to stdin and stderr.
func New() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stderr}
}

func (p *Prompter) buffered() *bufio.Reader {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	return p.reader
}

// Line asks for a free-form line of input. The answer is stripped of
// surrounding whitespace; an empty answer returns fallback.
func (p *Prompter) Line(label, fallback string) (string, error) {
	if fallback != "" {
		fmt.Fprintf(p.Out, "%s [%s]: ", label, fallback)
	} else {
		fmt.Fprintf(p.Out, "%s: ", label)
	}
	answer, err := p.buffered().ReadString('\n')
	if err != nil && answer == "" {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return fallback, nil
	}
	return answer, nil
}

// Confirm asks a yes/no question. Empty input selects def. Any answer
// beginning with y or Y is yes; everything else is no.
func (p *Prompter) Confirm(label string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(p.Out, "%s [%s]: ", label, hint)
	answer, err := p.buffered().ReadString('\n')
	if err != nil && answer == "" {
		return false, err
	}
	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer == "" {
		return def, nil
	}
	return strings.HasPrefix(answer, "y"), nil
}

// Typed requires the user to type phrase exactly. Used before the most
// destructive operations (writing an image over a block device,
// corrupting a file in place), where a stray "y" must not be enough.
func (p *Prompter) Typed(label, phrase string) error {
	fmt.Fprintf(p.Out, "%s\nType %q to continue: ", label, phrase)
	answer, err := p.buffered().ReadString('\n')
	if err != nil && answer == "" {
		return err
	}
	if strings.TrimSpace(answer) != phrase {
		return fmt.Errorf("confirmation did not match %q", phrase)
	}
	return nil
}

// Secret asks for a secret with terminal echo disabled. When In is not
// a terminal (tests, pipelines), it falls back to reading a plain line,
// which keeps scripted use working at the cost of echo.
func (p *Prompter) Secret(label string) (string, error) {
	fmt.Fprintf(p.Out, "%s: ", label)

	if file, ok := p.In.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		secretBytes, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return string(secretBytes), nil
	}

	answer, err := p.buffered().ReadString('\n')
	if err != nil && answer == "" {
		return "", err
	}
	return strings.TrimRight(answer, "\r\n"), nil
}
