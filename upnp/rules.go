// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Protocol is a transport protocol for a port mapping. ProtocolBoth is
// rule-file sugar: it never reaches a backend, expanding to TCP and
// UDP actions (TCP first) during planning.
type Protocol string

const (
	ProtocolTCP  Protocol = "tcp"
	ProtocolUDP  Protocol = "udp"
	ProtocolBoth Protocol = "both"
)

// ParseProtocol parses a protocol token case-insensitively.
func ParseProtocol(token string) (Protocol, error) {
	switch Protocol(strings.ToLower(token)) {
	case ProtocolTCP:
		return ProtocolTCP, nil
	case ProtocolUDP:
		return ProtocolUDP, nil
	case ProtocolBoth:
		return ProtocolBoth, nil
	}
	return "", fmt.Errorf("protocol %q is not tcp, udp, or both", token)
}

// Expand returns the concrete protocols this value stands for:
// ProtocolBoth becomes TCP then UDP, anything else is itself.
func (protocol Protocol) Expand() []Protocol {
	if protocol == ProtocolBoth {
		return []Protocol{ProtocolTCP, ProtocolUDP}
	}
	return []Protocol{protocol}
}

// Rule is one desired forwarding entry from the rule file: traffic
// arriving at External on the router goes to Internal on this host.
// Duplicate rules are allowed and planned independently.
type Rule struct {
	Internal uint16   `json:"internal"`
	External uint16   `json:"external"`
	Protocol Protocol `json:"protocol"`
}

func (rule Rule) String() string {
	return fmt.Sprintf("%d->%d/%s", rule.External, rule.Internal, rule.Protocol)
}

// LineError reports one malformed rule-file line. Parsing continues
// past it; the line simply produces no rule.
type LineError struct {
	Line  int
	Input string
	Err   error
}

func (lineError *LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", lineError.Line, lineError.Input, lineError.Err)
}

func (lineError *LineError) Unwrap() error {
	return lineError.Err
}

// ParseRules reads a rule file: one rule per line in the form
//
//	internal_port [external_port] protocol
//
// where protocol is tcp, udp, or both (case-insensitive) and the
// external port defaults to the internal port. Blank lines and lines
// whose first non-space character is '#' are ignored. Malformed lines
// are collected as LineErrors and do not stop the scan; the returned
// rules are every line that parsed cleanly, in file order.
func ParseRules(reader io.Reader) ([]Rule, []*LineError, error) {
	var rules []Rule
	var lineErrors []*LineError

	scanner := bufio.NewScanner(reader)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		rule, err := parseRuleLine(text)
		if err != nil {
			lineErrors = append(lineErrors, &LineError{Line: lineNumber, Input: text, Err: err})
			continue
		}
		rules = append(rules, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading rule file: %w", err)
	}
	return rules, lineErrors, nil
}

// parseRuleLine parses one non-blank, non-comment line.
func parseRuleLine(text string) (Rule, error) {
	fields := strings.Fields(text)

	var internalToken, externalToken, protocolToken string
	switch len(fields) {
	case 2:
		internalToken, protocolToken = fields[0], fields[1]
		externalToken = internalToken
	case 3:
		internalToken, externalToken, protocolToken = fields[0], fields[1], fields[2]
	default:
		return Rule{}, fmt.Errorf("expected 2 or 3 fields, got %d", len(fields))
	}

	internal, err := parsePort(internalToken)
	if err != nil {
		return Rule{}, fmt.Errorf("internal port: %w", err)
	}
	external, err := parsePort(externalToken)
	if err != nil {
		return Rule{}, fmt.Errorf("external port: %w", err)
	}
	protocol, err := ParseProtocol(protocolToken)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Internal: internal, External: external, Protocol: protocol}, nil
}

// parsePort parses a decimal port and rejects 0: a mapping to port 0
// is never what a rule file means.
func parsePort(token string) (uint16, error) {
	value, err := strconv.ParseUint(token, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%q is not a port between 1 and 65535", token)
	}
	if value == 0 {
		return 0, fmt.Errorf("port 0 is not mappable")
	}
	return uint16(value), nil
}

// ExampleRules is written to the default rule-file path on first run
// so the user has a template to edit.
const ExampleRules = `# nex upnp rule file
#
# One rule per line: internal_port [external_port] protocol
#
# Protocol is one of (case insensitive):
#   tcp
#   udp
#   both  (expands into one tcp and one udp rule)
#
# The internal port is the port your service listens on locally. The
# external port is optional and defaults to the internal port.
#
# Examples:
#   22 2222 tcp    forwards your_public_ip:2222 to localhost:22
#   80 tcp         forwards your_public_ip:80 to localhost:80
#
# The same internal port may appear in several rules:
#   80 8080 tcp
#   80 8000 tcp
`
