// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ytdlp implements the Extractor port by running the yt-dlp binary.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/model"
	"github.com/ManuGH/clipgate/internal/domain/session/ports"
	"github.com/ManuGH/clipgate/internal/procgroup"
	"github.com/rs/zerolog"
)

const (
	// ArtifactBase is the file stem of every downloaded artifact.
	ArtifactBase = "artifact"

	progressMarker = "clipgate-progress:"
	// Fields: downloaded|total|total_estimate|speed|eta|percent
	progressTemplate = "download:" + progressMarker +
		"%(progress.downloaded_bytes)s|%(progress.total_bytes)s|%(progress.total_bytes_estimate)s|" +
		"%(progress.speed)s|%(progress.eta)s|%(progress._percent_str)s"

	defaultFormat   = "bv*+ba/b"
	terminateGrace  = 3 * time.Second
	maxJSONLine     = 32 << 20
	diagnosticLines = 50
)

// ErrNoArtifact is returned when yt-dlp exits cleanly without leaving a file.
var ErrNoArtifact = errors.New("extractor produced no artifact")

// Client runs yt-dlp.
type Client struct {
	Bin     string
	Timeout time.Duration
	Logger  zerolog.Logger
}

var _ ports.Extractor = (*Client)(nil)

// New returns a client for bin (default "yt-dlp").
func New(bin string, timeout time.Duration, logger zerolog.Logger) *Client {
	if bin == "" {
		bin = "yt-dlp"
	}
	return &Client{Bin: bin, Timeout: timeout, Logger: logger}
}

// CheckBinary verifies the binary is runnable and returns its version.
func (c *Client) CheckBinary(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, c.Bin, "--version").Output() // #nosec G204 -- configured binary
	if err != nil {
		return "", fmt.Errorf("run %s --version: %w", c.Bin, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func baseArgs() []string {
	return []string{
		"--dump-single-json",
		"--no-playlist",
		"--no-warnings",
		"--no-color",
		"--prefer-free-formats",
	}
}

// FetchMetadata runs yt-dlp in simulate mode and returns the parsed info.
func (c *Client) FetchMetadata(ctx context.Context, url string) (ports.Metadata, error) {
	args := append(baseArgs(), "--skip-download", "--", url)
	res, err := c.run(ctx, args, nil)
	if err != nil {
		return ports.Metadata{}, err
	}
	info, err := parseInfo(res.info)
	if err != nil {
		return ports.Metadata{}, err
	}
	return info.metadata(), nil
}

// FetchArtifact downloads url into req.OutputDir as artifact.<ext>. The same
// invocation prints the info JSON so no separate metadata call is needed.
func (c *Client) FetchArtifact(ctx context.Context, req ports.FetchRequest, onProgress ports.ProgressFunc) (ports.Artifact, error) {
	format := req.Format
	if format == "" {
		format = defaultFormat
	}
	args := append(baseArgs(),
		"--no-simulate",
		"--newline",
		"--progress",
		"--progress-template", progressTemplate,
		"--no-part",
		"--no-mtime",
		"--format", format,
		"--merge-output-format", "mp4",
		"--output", filepath.Join(req.OutputDir, ArtifactBase+".%(ext)s"),
	)
	if req.MaxBytes > 0 {
		args = append(args, "--max-filesize", strconv.FormatInt(req.MaxBytes, 10))
	}
	args = append(args, "--", req.URL)

	res, err := c.run(ctx, args, onProgress)
	if err != nil {
		return ports.Artifact{}, err
	}
	info, err := parseInfo(res.info)
	if err != nil {
		return ports.Artifact{}, err
	}

	path, err := findArtifact(req.OutputDir)
	if err != nil {
		return ports.Artifact{}, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return ports.Artifact{}, fmt.Errorf("stat artifact: %w", err)
	}
	if req.MaxBytes > 0 && st.Size() > req.MaxBytes {
		return ports.Artifact{}, fmt.Errorf("artifact is %d bytes, limit %d", st.Size(), req.MaxBytes)
	}
	return ports.Artifact{
		Path:     path,
		Size:     st.Size(),
		MimeType: MimeTypeFor(path),
		Metadata: info.metadata(),
	}, nil
}

// MimeTypeFor guesses the content type from the file extension.
func MimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".m4a":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func findArtifact(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, ArtifactBase+".*"))
	if err != nil {
		return "", err
	}
	var files []string
	for _, m := range matches {
		switch filepath.Ext(m) {
		case ".part", ".ytdl", ".tmp":
			continue
		}
		if st, err := os.Stat(m); err == nil && st.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return "", ErrNoArtifact
	}
	// Prefer the merged container if intermediate streams were kept.
	sort.Slice(files, func(i, j int) bool {
		return strings.HasSuffix(files[i], ".mp4") && !strings.HasSuffix(files[j], ".mp4")
	})
	return files[0], nil
}

type runResult struct {
	info []byte
}

func (c *Client) run(ctx context.Context, args []string, onProgress ports.ProgressFunc) (*runResult, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.Command(c.Bin, args...) // #nosec G204 -- args are built here, url follows "--"
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Bin, err)
	}

	ring := newRingBuffer(diagnosticLines)
	var info []byte
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		info = scanOutput(stdout, onProgress, ring, true)
	}()
	go func() {
		defer wg.Done()
		scanOutput(stderr, onProgress, ring, false)
	}()

	waitCh := make(chan error, 1)
	go func() {
		// Pipes must be drained before Wait closes them.
		wg.Wait()
		waitCh <- cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-ctx.Done():
		_ = procgroup.Terminate(cmd, waitCh, terminateGrace)
		return nil, fmt.Errorf("yt-dlp interrupted: %w", ctx.Err())
	}

	if waitErr != nil {
		c.Logger.Warn().
			Err(waitErr).
			Strs("stderr_tail", ring.GetAll()).
			Msg("yt-dlp failed")
		return nil, fmt.Errorf("yt-dlp: %w", waitErr)
	}
	if len(info) == 0 {
		return nil, errors.New("yt-dlp printed no info json")
	}
	return &runResult{info: info}, nil
}

// scanOutput consumes one stream. Progress lines go to onProgress; the last
// JSON object on stdout is returned; anything else is kept for diagnostics.
func scanOutput(r io.Reader, onProgress ports.ProgressFunc, ring *ringBuffer, stdout bool) []byte {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxJSONLine)
	var info []byte
	for sc.Scan() {
		line := sc.Bytes()
		if rest, ok := bytes.CutPrefix(line, []byte(progressMarker)); ok {
			if onProgress != nil {
				if u, ok := ParseProgressLine(string(rest)); ok {
					onProgress(u)
				}
			}
			continue
		}
		if stdout && len(line) > 0 && line[0] == '{' {
			info = append(info[:0], line...)
			continue
		}
		ring.Add(string(line))
	}
	// Keep draining so the child never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
	return info
}

// ParseProgressLine decodes one templated progress line. Values are passed
// through raw; the session model coerces them.
func ParseProgressLine(s string) (model.ProgressUpdate, bool) {
	parts := strings.Split(strings.TrimSpace(s), "|")
	if len(parts) != 6 {
		return model.ProgressUpdate{}, false
	}
	total := any(parts[1])
	if _, ok := model.ParseBytes(parts[1]); !ok {
		total = parts[2]
	}
	return model.ProgressUpdate{
		BytesDone:  parts[0],
		BytesTotal: total,
		Speed:      parts[3],
		ETA:        parts[4],
		Percent:    strings.TrimSpace(parts[5]),
	}, true
}
