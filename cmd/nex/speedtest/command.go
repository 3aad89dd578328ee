// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package speedtest implements "nex speedtest": a download speed test
// against real file mirrors instead of dedicated speedtest servers.
package speedtest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/config"
	"github.com/nexutils/nex/lib/progress"
	"github.com/nexutils/nex/lib/version"
)

type speedtestParams struct {
	cli.JSONOutput
	Config  string `flag:"config,c" desc:"path to the config file"`
	Mirrors string `flag:"mirrors" desc:"path to a mirror list file (JSON, comments allowed)"`
	MaxTime string `flag:"max-time,t" desc:"how long to stream for" default:"10s"`
}

// speedResult is the measurement summary, shared between the text and
// --json outputs.
type speedResult struct {
	URL        string  `json:"url"`
	ConnectMS  float64 `json:"connect_ms"`
	Bytes      int64   `json:"bytes"`
	Seconds    float64 `json:"seconds"`
	MiBPerSec  float64 `json:"mib_per_s"`
	MbitPerSec float64 `json:"mbit_per_s"`
}

// Command returns the "speedtest" command.
func Command() *cli.Command {
	var params speedtestParams
	return &cli.Command{
		Name:    "speedtest",
		Summary: "Measure download speed against a file mirror",
		Description: `Stream a large file from a weighted-random mirror for a fixed window
and report the measured throughput. Testing against ordinary ISO
mirrors avoids the traffic-shaping games ISPs play with well-known
speedtest endpoints.

The mirror list can be replaced via speedtest-mirrors.json in the
config directory (or --mirrors): a JSON array of {"url", "weight"}
objects, comments allowed. Weights bias selection towards mirrors
with more capacity.`,
		Usage: "nex speedtest [flags]",
		Examples: []cli.Example{
			{
				Description: "A quick ten-second measurement",
				Command:     "nex speedtest",
			},
			{
				Description: "A longer run with machine-readable output",
				Command:     "nex speedtest --max-time 30s --json",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return cli.Validation("speedtest takes no arguments")
			}
			return runSpeedtest(ctx, params, logger)
		},
	}
}

func runSpeedtest(ctx context.Context, params speedtestParams, logger *slog.Logger) error {
	maxTime, err := time.ParseDuration(params.MaxTime)
	if err != nil {
		return cli.Validation("bad --max-time: %v", err)
	}
	if maxTime <= 0 {
		return cli.Validation("--max-time must be positive")
	}

	cfg, err := loadConfig(params.Config)
	if err != nil {
		return err
	}
	path := cfg.Speedtest.Mirrors
	explicit := params.Mirrors != ""
	if explicit {
		path = params.Mirrors
	}
	mirrors, err := loadMirrors(path, explicit)
	if err != nil {
		return err
	}

	mirror := pickMirror(mirrors)
	logger.Debug("selected mirror", "url", mirror.URL, "weight", weightOf(mirror))

	result, err := measure(ctx, mirror.URL, maxTime, logger)
	if err != nil {
		return err
	}

	if done, err := params.EmitJSON(result); done {
		return err
	}
	fmt.Printf("mirror:  %s\n", result.URL)
	fmt.Printf("connect: %.1fms\n", result.ConnectMS)
	fmt.Printf("moved:   %s in %.1fs\n", humanize.IBytes(uint64(result.Bytes)), result.Seconds)
	fmt.Printf("speed:   %.1f MiB/s (%.0f Mbit/s)\n", result.MiBPerSec, result.MbitPerSec)
	return nil
}

// measure streams url for up to maxTime and reports what moved. The
// rate is computed over the streaming window only; connection setup is
// reported separately so slow TLS handshakes don't masquerade as slow
// lines.
func measure(ctx context.Context, url string, maxTime time.Duration, logger *slog.Logger) (*speedResult, error) {
	// The transport must not decode anything: the point is counting
	// wire bytes.
	client := &http.Client{Transport: &http.Transport{DisableCompression: true}}

	// The deadline is far past maxTime on purpose: it only guards
	// against a mirror that stalls without closing.
	requestCtx, cancel := context.WithTimeout(ctx, maxTime+30*time.Second)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, cli.Validation("bad mirror url %s: %v", url, err)
	}
	request.Header.Set("User-Agent", version.UserAgent())

	connectStart := time.Now()
	response, err := client.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cli.Transient("interrupted")
		}
		return nil, cli.Transient("connecting to %s: %v", url, err)
	}
	defer response.Body.Close()
	connect := time.Since(connectStart)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, cli.Transient("%s answered %s", url, response.Status)
	}

	tracker := progress.NewTracker(logger)
	task := tracker.AddBytes("downloading", progress.UnknownTotal)

	var transferred int64
	var elapsed time.Duration
	err = tracker.Run(requestCtx, func(runCtx context.Context) error {
		buffer := make([]byte, 128<<10)
		streamStart := time.Now()
		for {
			n, readErr := response.Body.Read(buffer)
			transferred += int64(n)
			task.Add(int64(n))
			elapsed = time.Since(streamStart)
			if elapsed >= maxTime {
				break
			}
			if readErr == io.EOF {
				// The file ran out before the clock did. The numbers
				// are still valid, just over a shorter window.
				logger.Debug("mirror closed the stream early", "bytes", transferred)
				break
			}
			if readErr != nil {
				task.Fail(readErr)
				if runCtx.Err() != nil {
					return cli.Transient("interrupted")
				}
				return cli.Transient("stream from %s broke: %v", url, readErr)
			}
		}
		task.Done()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if transferred == 0 {
		return nil, cli.Transient("%s sent no data", url)
	}

	seconds := elapsed.Seconds()
	return &speedResult{
		URL:        url,
		ConnectMS:  float64(connect.Microseconds()) / 1000,
		Bytes:      transferred,
		Seconds:    seconds,
		MiBPerSec:  float64(transferred) / seconds / (1 << 20),
		MbitPerSec: float64(transferred) * 8 / seconds / 1e6,
	}, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, cli.Validation("%v", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, cli.Validation("%v", err)
	}
	return cfg, nil
}
