// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sys/unix"

	"github.com/nexutils/nex/cmd/nex/cli"
	"github.com/nexutils/nex/lib/progress"
	"github.com/nexutils/nex/lib/version"
)

// userAgents are the impersonation presets. Some servers refuse
// anything that does not look like a browser; others refuse anything
// that does not look like curl.
var userAgents = map[string]string{
	"firefox": "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
	"chrome":  "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"curl":    "curl/8.9.1",
	"wget":    "Wget/1.24.5",
}

// resolveUserAgent maps a preset to its header value. Unknown names
// pass through as literal user agents; "none" suppresses the header.
func resolveUserAgent(name string) string {
	switch strings.ToLower(name) {
	case "", "default":
		return version.UserAgent()
	case "none":
		return ""
	}
	if agent, ok := userAgents[strings.ToLower(name)]; ok {
		return agent
	}
	return name
}

func requestHeader(params downloadParams) http.Header {
	header := http.Header{}
	if agent := resolveUserAgent(params.UserAgent); agent != "" {
		header.Set("User-Agent", agent)
	}
	if params.NoDecompress {
		// Ask for the raw bytes but accept compression if the server
		// insists; the body is written as received either way.
		header.Set("Accept-Encoding", "identity;q=0.9, *;q=0.1")
	} else {
		header.Set("Accept-Encoding", "gzip")
	}
	return header
}

// probeResult is what one halted GET reveals about the target.
type probeResult struct {
	status    int
	size      int64
	challenge string
}

// probe issues a GET and discards the body immediately: status, size,
// and authentication requirements all travel in the header, and unlike
// HEAD, a GET is answered truthfully everywhere.
func probe(ctx context.Context, client *http.Client, rawURL string, header http.Header) (*probeResult, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, cli.Validation("%v", err)
	}
	request.Header = header.Clone()

	response, err := client.Do(request)
	if err != nil {
		return nil, cli.Transient("probing %s: %v", rawURL, err)
	}
	response.Body.Close()

	return &probeResult{
		status:    response.StatusCode,
		size:      response.ContentLength,
		challenge: response.Header.Get("WWW-Authenticate"),
	}, nil
}

// basicRealm extracts the realm from a Basic challenge. A non-Basic
// challenge returns ""; a Basic challenge without a realm returns
// "protected".
func basicRealm(challenge string) string {
	if !strings.HasPrefix(strings.ToLower(challenge), "basic") {
		return ""
	}
	for _, part := range strings.Split(challenge[len("basic"):], ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.EqualFold(strings.TrimSpace(key), "realm") {
			return strings.Trim(strings.TrimSpace(value), `"`)
		}
	}
	return "protected"
}

func basicAuthHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// destinationPath decides where the download lands: --output wins, a
// directory output gets the URL's file name appended, and the default
// is ~/Downloads when that directory exists, the working directory
// otherwise.
func destinationPath(output, rawURL string) (string, error) {
	name := fileNameFromURL(rawURL)
	if output == "" {
		if home, err := os.UserHomeDir(); err == nil {
			downloads := filepath.Join(home, "Downloads")
			if info, statErr := os.Stat(downloads); statErr == nil && info.IsDir() {
				return filepath.Join(downloads, name), nil
			}
		}
		return name, nil
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return filepath.Join(output, name), nil
	}
	return output, nil
}

func fileNameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return "index.html"
	}
	return name
}

type fetchOptions struct {
	reserve      bool
	noDecompress bool
	size         int64
	task         *progress.Task
	tracker      *progress.Tracker
}

// fetch performs the actual transfer into dest and returns the number
// of bytes written to disk.
func fetch(ctx context.Context, client *http.Client, rawURL string, header http.Header, dest string, options fetchOptions) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, cli.Internal("creating %s: %v", filepath.Dir(dest), err)
	}
	file, err := os.OpenFile(dest, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, cli.Internal("creating %s: %v", dest, err)
	}
	defer file.Close()

	if options.reserve && options.size > 0 {
		if err := reserve(file, options.size, options.tracker); err != nil {
			return 0, err
		}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, cli.Validation("%v", err)
	}
	request.Header = header.Clone()
	response, err := client.Do(request)
	if err != nil {
		return 0, cli.Transient("downloading %s: %v", rawURL, err)
	}
	defer response.Body.Close()
	if err := checkStatus(response.StatusCode, rawURL); err != nil {
		return 0, err
	}

	// Progress counts wire bytes so it lines up with Content-Length
	// even when the body is being decoded.
	var body io.Reader = &countingReader{reader: response.Body, task: options.task}
	if !options.noDecompress && strings.EqualFold(response.Header.Get("Content-Encoding"), "gzip") {
		decoder, gzErr := gzip.NewReader(body)
		if gzErr != nil {
			return 0, cli.Internal("decoding gzip stream: %v", gzErr)
		}
		defer decoder.Close()
		body = decoder
	}

	written, err := io.Copy(file, body)
	if err != nil {
		if ctx.Err() != nil {
			return written, cli.Transient("interrupted")
		}
		return written, cli.Transient("downloading %s: %v", rawURL, err)
	}
	// A reserved file can be longer than the decoded body.
	if err := file.Truncate(written); err != nil {
		return written, cli.Internal("truncating %s: %v", dest, err)
	}
	if err := file.Close(); err != nil {
		return written, cli.Internal("closing %s: %v", dest, err)
	}
	return written, nil
}

type countingReader struct {
	reader io.Reader
	task   *progress.Task
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	if n > 0 && c.task != nil {
		c.task.Add(int64(n))
	}
	return n, err
}

// reserve preallocates size bytes. Fallocate is metadata-only on
// filesystems that support it; the zero-fill fallback covers the rest.
// Either way a too-small disk fails here, before bandwidth is spent.
func reserve(file *os.File, size int64, tracker *progress.Tracker) error {
	err := unix.Fallocate(int(file.Fd()), 0, 0, size)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.ENOSPC) {
		return diskFull(size)
	}
	if !errors.Is(err, unix.EOPNOTSUPP) && !errors.Is(err, unix.ENOSYS) {
		return cli.Internal("preallocating %s: %v", file.Name(), err)
	}

	var task *progress.Task
	if tracker != nil {
		task = tracker.AddBytes("reserving space", size)
	}
	if err := zeroFill(file, size, task); err != nil {
		if task != nil {
			task.Fail(err)
		}
		return err
	}
	if task != nil {
		task.Done()
	}
	return nil
}

func zeroFill(file *os.File, size int64, task *progress.Task) error {
	block := make([]byte, 4<<20)
	var written int64
	for written < size {
		n := int64(len(block))
		if remaining := size - written; remaining < n {
			n = remaining
		}
		if _, err := file.Write(block[:n]); err != nil {
			if errors.Is(err, unix.ENOSPC) {
				return diskFull(size)
			}
			return cli.Internal("preallocating %s: %v", file.Name(), err)
		}
		written += n
		if task != nil {
			task.Add(n)
		}
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return cli.Internal("rewinding %s: %v", file.Name(), err)
	}
	return nil
}

func diskFull(size int64) error {
	return cli.Internal("not enough disk space for %s", humanize.IBytes(uint64(size)))
}
