// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package download implements "nex download": a plain HTTP downloader
// with the conveniences wget forgets — space reservation, basic-auth
// prompting, and honest progress.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/progress"
	"github.com/nexutils/nex/lib/prompt"
)

type downloadParams struct {
	Output       string `flag:"output,o" desc:"output file or directory (default: ~/Downloads, else the working directory)"`
	UserAgent    string `flag:"user-agent" desc:"user agent: firefox, chrome, curl, wget, none, or a literal string"`
	NoDecompress bool   `flag:"no-decompress" desc:"request identity encoding and write the body exactly as received"`
	Reserve      bool   `flag:"reserve" desc:"preallocate the full size before downloading"`
	KeepPartial  bool   `flag:"keep-partial" desc:"keep the partial file when the download fails"`
	Force        bool   `flag:"force,f" desc:"overwrite an existing file without asking"`
}

// Command returns the "download" command.
func Command() *cli.Command {
	var params downloadParams
	return &cli.Command{
		Name:    "download",
		Summary: "Download a URL with progress and sane defaults",
		Description: `Stream an HTTP(S) URL to disk. The size is probed with a halted GET
(no HEAD, which half the internet answers wrong), servers demanding
basic authentication get an interactive credential prompt, and gzip
bodies are decoded on the fly unless --no-decompress asks for the
raw bytes — useful when downloading files that are themselves
gzipped, where decoding would be wrong.

Files land in ~/Downloads when that directory exists, next to you
otherwise; --output names a file or directory explicitly. --reserve
preallocates the advertised size first, so a disk too small fails in
the first second instead of the last. A failed or interrupted
download removes the partial file unless --keep-partial.`,
		Usage: "nex download <url> [flags]",
		Examples: []cli.Example{
			{
				Description: "Fetch an ISO into ~/Downloads with preallocation",
				Command:     "nex download https://example.org/disk.iso --reserve",
			},
			{
				Description: "Pretend to be a browser for picky servers",
				Command:     "nex download https://example.org/file --user-agent firefox",
			},
			{
				Description: "Keep a .tar.gz compressed",
				Command:     "nex download https://example.org/src.tar.gz --no-decompress -o /tmp/",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one URL")
			}
			return runDownload(ctx, params, args[0], logger)
		},
	}
}

func runDownload(ctx context.Context, params downloadParams, rawURL string, logger *slog.Logger) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return cli.Validation("%q is not a URL: %v", rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return cli.Validation("unsupported scheme %q (http and https only)", parsed.Scheme)
	}

	dest, err := destinationPath(params.Output, rawURL)
	if err != nil {
		return err
	}
	if err := confirmOverwrite(dest, params.Force); err != nil {
		return err
	}

	// The transport must not negotiate compression itself: transparent
	// decoding hides the Content-Length and breaks --no-decompress.
	client := &http.Client{Transport: &http.Transport{DisableCompression: true}}
	header := requestHeader(params)

	probeCtx, cancelProbe := context.WithTimeout(ctx, 30*time.Second)
	result, err := probe(probeCtx, client, rawURL, header)
	cancelProbe()
	if err != nil {
		return err
	}

	if result.status == http.StatusUnauthorized {
		header, result, err = authenticate(ctx, client, rawURL, header, result, logger)
		if err != nil {
			return err
		}
	}
	if err := checkStatus(result.status, rawURL); err != nil {
		return err
	}
	if result.size > 0 {
		logger.Debug("probed size", "url", rawURL, "bytes", result.size)
	} else {
		logger.Warn("server did not advertise a size; no ETA, no reservation")
	}

	fmt.Printf("downloading %s -> %s\n", rawURL, dest)

	total := result.size
	if total <= 0 {
		total = progress.UnknownTotal
	}
	tracker := progress.NewTracker(logger)
	task := tracker.AddBytes(fileNameFromURL(rawURL), total)

	start := time.Now()
	var written int64
	err = tracker.Run(ctx, func(ctx context.Context) error {
		written, err = fetch(ctx, client, rawURL, header, dest, fetchOptions{
			reserve:      params.Reserve,
			noDecompress: params.NoDecompress,
			size:         result.size,
			task:         task,
			tracker:      tracker,
		})
		if err != nil {
			task.Fail(err)
			return err
		}
		task.Done()
		return nil
	})
	if err != nil {
		if !params.KeepPartial {
			if removeErr := os.Remove(dest); removeErr == nil {
				logger.Info("removed partial file", "path", dest)
			}
		}
		return err
	}

	elapsed := time.Since(start)
	rate := ""
	if seconds := elapsed.Seconds(); seconds > 0 {
		rate = fmt.Sprintf(", %s/s", humanize.IBytes(uint64(float64(written)/seconds)))
	}
	fmt.Printf("downloaded %s (%s in %s%s)\n",
		dest, humanize.IBytes(uint64(written)), elapsed.Round(100*time.Millisecond), rate)
	return nil
}

// authenticate prompts for basic-auth credentials and re-probes. Only
// Basic challenges are answered; anything fancier is reported as is.
func authenticate(ctx context.Context, client *http.Client, rawURL string, header http.Header, result *probeResult, logger *slog.Logger) (http.Header, *probeResult, error) {
	realm := basicRealm(result.challenge)
	if realm == "" {
		return nil, nil, cli.Forbidden("%s wants %q authentication; only Basic is supported", rawURL, result.challenge)
	}
	fmt.Fprintf(os.Stderr, "%s requires authentication (realm %q)\n", rawURL, realm)

	prompter := prompt.New()
	username, err := prompter.Line("username", "")
	if err != nil {
		return nil, nil, cli.Forbidden("%s requires authentication and there is no terminal to ask on", rawURL)
	}
	password, err := prompter.Secret("password")
	if err != nil {
		return nil, nil, cli.Forbidden("%s requires authentication and there is no terminal to ask on", rawURL)
	}

	header = header.Clone()
	header.Set("Authorization", basicAuthHeader(username, password))

	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	result, err = probe(probeCtx, client, rawURL, header)
	if err != nil {
		return nil, nil, err
	}
	if result.status == http.StatusUnauthorized {
		return nil, nil, cli.Forbidden("%s rejected the credentials", rawURL)
	}
	logger.Debug("authenticated", "url", rawURL, "realm", realm)
	return header, result, nil
}

func checkStatus(status int, rawURL string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusForbidden:
		return cli.Forbidden("%s answered 403", rawURL)
	case status == http.StatusNotFound || status == http.StatusGone:
		return cli.NotFound("%s answered %d", rawURL, status)
	default:
		return cli.Transient("%s answered %d", rawURL, status)
	}
}

func confirmOverwrite(dest string, force bool) error {
	if force {
		return nil
	}
	if _, err := os.Stat(dest); err != nil {
		return nil
	}
	confirmed, err := prompt.New().Confirm(fmt.Sprintf("%s already exists; overwrite?", dest), false)
	if err != nil {
		return cli.Conflict("%s already exists (pass --force)", dest)
	}
	if !confirmed {
		return cli.Conflict("refusing to overwrite %s", dest)
	}
	return nil
}
