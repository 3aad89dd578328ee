// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the nex unified CLI.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a parameter struct bound to flags
// via struct tags ([Command.Params]), and a Run function. Commands are
// assembled into a tree in cmd/nex/commands and dispatched via
// [Command.Execute], which handles flag parsing, subcommand routing, and
// structured help output with examples.
//
// When a user types an unknown subcommand or flag, the framework computes
// Levenshtein edit distance against all known names and suggests the
// closest match (threshold: distance <= 3). This is implemented in
// suggest.go.
//
// Errors returned by commands are categorized [ToolError] values built
// with the constructors in toolerror.go (Validation, NotFound, ...).
// main maps them to exit codes via [ExitCodeFor]; commands that manage
// their own output return [ExitError] directly.
package cli
