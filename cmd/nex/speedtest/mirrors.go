// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package speedtest

import (
	"encoding/json"
	"errors"
	"io/fs"
	mathrand "math/rand"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/nexutils/nex/cmd/nex/cli"
)

// Mirror is one download target. Weight biases selection towards
// mirrors with more capacity behind them; entries without a weight
// count as 1.
type Mirror struct {
	URL    string `json:"url"`
	Weight int    `json:"weight"`
}

// builtinMirrors are large, well-connected Ubuntu ISO mirrors. An ISO
// is ideal test material: big enough to saturate any consumer line,
// incompressible, and served by hosts built for exactly this load.
var builtinMirrors = []Mirror{
	{URL: "https://mirror.lon.macarne.com/ubuntu-releases/24.04/ubuntu-24.04.3-desktop-amd64.iso", Weight: 20},
	{URL: "https://releases.ubuntu.com/noble/ubuntu-24.04.3-desktop-amd64.iso", Weight: 20},
	{URL: "https://ask4.mm.fcix.net/ubuntu-releases/24.04/ubuntu-24.04.3-desktop-amd64.iso", Weight: 10},
	{URL: "http://mirror.vorboss.net/ubuntu-releases/24.04/ubuntu-24.04.3-desktop-amd64.iso", Weight: 10},
	{URL: "https://mirrors.20i.com/pub/releases.ubuntu.com/24.04/ubuntu-24.04.3-desktop-amd64.iso", Weight: 10},
	{URL: "https://www.mirrorservice.org/sites/releases.ubuntu.com/24.04/ubuntu-24.04.3-desktop-amd64.iso", Weight: 10},
}

// loadMirrors reads the mirror list at path, falling back to the
// built-in list when path is empty or names the default location and
// no file exists there. When the user asked for a specific file
// (explicit), its absence is an error.
func loadMirrors(path string, explicit bool) ([]Mirror, error) {
	if path == "" {
		return builtinMirrors, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return builtinMirrors, nil
	}
	if err != nil {
		return nil, cli.NotFound("reading mirror list: %v", err)
	}

	var mirrors []Mirror
	if err := json.Unmarshal(jsonc.ToJSON(data), &mirrors); err != nil {
		return nil, cli.Validation("parsing %s: %v", path, err)
	}
	if len(mirrors) == 0 {
		return nil, cli.Validation("%s lists no mirrors", path)
	}
	for i, mirror := range mirrors {
		if mirror.URL == "" {
			return nil, cli.Validation("%s: mirror %d has no url", path, i+1)
		}
	}
	return mirrors, nil
}

// pickMirror draws a weighted-random mirror.
func pickMirror(mirrors []Mirror) Mirror {
	return pick(mirrors, mathrand.Int63n(totalWeight(mirrors)))
}

// pick returns the mirror selected by roll, a number in
// [0, totalWeight). The arithmetic is kept pure so the weighting is
// testable without statistics.
func pick(mirrors []Mirror, roll int64) Mirror {
	for _, mirror := range mirrors {
		roll -= int64(weightOf(mirror))
		if roll < 0 {
			return mirror
		}
	}
	return mirrors[len(mirrors)-1]
}

func totalWeight(mirrors []Mirror) int64 {
	var total int64
	for _, mirror := range mirrors {
		total += int64(weightOf(mirror))
	}
	return total
}

func weightOf(mirror Mirror) int {
	if mirror.Weight <= 0 {
		return 1
	}
	return mirror.Weight
}
