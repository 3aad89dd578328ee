// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package upnp

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/nexutils/nex/upnp"
)

func testMappings() []upnp.Mapping {
	return []upnp.Mapping{
		{ExternalPort: 8080, Protocol: upnp.ProtocolTCP, TargetIP: netip.MustParseAddr("192.168.1.10"), TargetPort: 8080},
		{ExternalPort: 8080, Protocol: upnp.ProtocolUDP, TargetIP: netip.MustParseAddr("192.168.1.10"), TargetPort: 8080},
		{ExternalPort: 2222, Protocol: upnp.ProtocolTCP, TargetIP: netip.MustParseAddr("192.168.1.50"), TargetPort: 22},
	}
}

func TestParseSelectors(t *testing.T) {
	t.Parallel()

	mappings := testMappings()

	t.Run("bare port matches every protocol", func(t *testing.T) {
		t.Parallel()

		selected, err := parseSelectors([]string{"8080"}, mappings)
		if err != nil {
			t.Fatalf("parseSelectors: %v", err)
		}
		if len(selected) != 2 {
			t.Fatalf("selected %d mappings, want 2", len(selected))
		}
	})

	t.Run("port with protocol is exact", func(t *testing.T) {
		t.Parallel()

		selected, err := parseSelectors([]string{"8080/udp"}, mappings)
		if err != nil {
			t.Fatalf("parseSelectors: %v", err)
		}
		if len(selected) != 1 || selected[0].Protocol != upnp.ProtocolUDP {
			t.Fatalf("selected %v, want the single udp mapping", selected)
		}
	})

	t.Run("overlapping selectors dedupe", func(t *testing.T) {
		t.Parallel()

		selected, err := parseSelectors([]string{"8080", "8080/tcp"}, mappings)
		if err != nil {
			t.Fatalf("parseSelectors: %v", err)
		}
		if len(selected) != 2 {
			t.Fatalf("selected %d mappings, want 2 after dedupe", len(selected))
		}
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			selector string
			want     string
		}{
			{"99", "matches no mapping"},
			{"eighty", "not an external port"},
			{"0", "not an external port"},
			{"8080/carrier-pigeon", "not tcp, udp, or both"},
			{"8080/both", "bare port"},
		}
		for _, test := range tests {
			if _, err := parseSelectors([]string{test.selector}, mappings); err == nil {
				t.Errorf("selector %q was accepted", test.selector)
			} else if !strings.Contains(err.Error(), test.want) {
				t.Errorf("selector %q: error %q does not contain %q", test.selector, err, test.want)
			}
		}
	})
}

func TestParsePickerAnswer(t *testing.T) {
	t.Parallel()

	mappings := testMappings()

	t.Run("empty selects nothing", func(t *testing.T) {
		t.Parallel()

		selected, err := parsePickerAnswer("  ", mappings)
		if err != nil {
			t.Fatalf("parsePickerAnswer: %v", err)
		}
		if selected != nil {
			t.Errorf("selected %v, want nothing", selected)
		}
	})

	t.Run("all", func(t *testing.T) {
		t.Parallel()

		selected, err := parsePickerAnswer("ALL", mappings)
		if err != nil {
			t.Fatalf("parsePickerAnswer: %v", err)
		}
		if len(selected) != len(mappings) {
			t.Errorf("selected %d mappings, want %d", len(selected), len(mappings))
		}
	})

	t.Run("row ids", func(t *testing.T) {
		t.Parallel()

		selected, err := parsePickerAnswer("1 3", mappings)
		if err != nil {
			t.Fatalf("parsePickerAnswer: %v", err)
		}
		if len(selected) != 2 {
			t.Fatalf("selected %d mappings, want 2", len(selected))
		}
		if selected[0].ExternalPort != 8080 || selected[1].ExternalPort != 2222 {
			t.Errorf("selected %v, want rows 1 and 3", selected)
		}
	})

	t.Run("repeated ids dedupe", func(t *testing.T) {
		t.Parallel()

		selected, err := parsePickerAnswer("2 2", mappings)
		if err != nil {
			t.Fatalf("parsePickerAnswer: %v", err)
		}
		if len(selected) != 1 {
			t.Errorf("selected %d mappings, want 1", len(selected))
		}
	})

	t.Run("ip form", func(t *testing.T) {
		t.Parallel()

		selected, err := parsePickerAnswer("ip 192.168.1.10", mappings)
		if err != nil {
			t.Fatalf("parsePickerAnswer: %v", err)
		}
		if len(selected) != 2 {
			t.Errorf("selected %d mappings, want 2", len(selected))
		}
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()

		for _, answer := range []string{"0", "4", "ip", "ip 300.1.1.1", "ip 10.0.0.9", "one two"} {
			if _, err := parsePickerAnswer(answer, mappings); err == nil {
				t.Errorf("answer %q was accepted", answer)
			}
		}
	})
}

func TestSelectByIP(t *testing.T) {
	t.Parallel()

	mappings := testMappings()

	selected, err := selectByIP(mappings, "192.168.1.50")
	if err != nil {
		t.Fatalf("selectByIP: %v", err)
	}
	if len(selected) != 1 || selected[0].ExternalPort != 2222 {
		t.Errorf("selected %v, want the 2222 mapping", selected)
	}

	if _, err := selectByIP(mappings, "not-an-ip"); err == nil {
		t.Error("selectByIP accepted a malformed address")
	}
	if _, err := selectByIP(mappings, "10.9.9.9"); err == nil {
		t.Error("selectByIP matched an address with no mappings")
	}
}
