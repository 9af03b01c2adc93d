// Package extractor drives the external video-extractor subprocess (the
// supplemented feature documented in SPEC_FULL.md): a black-box binary
// (yt-dlp-compatible) that this package shells out to, parsing its
// progress line into the same events.ProgressEvent shape the core engine
// emits. Grounded on original_source/src-tauri/src/video.rs
// (parse_progress_line, the WDM:-prefixed progress template, the
// Destination:/Merging formats into/has already been downloaded
// stdout scans) and ytdlp.rs (binary path resolution).
package extractor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/teal33t/dlm/internal/events"
	"github.com/teal33t/dlm/internal/utils"
)

// progressPrefix is the fixed prefix the --progress-template emits ahead
// of each parseable progress line.
const progressPrefix = "DLM:"

// progressTemplate matches video.rs's WDP:... template, renamed to this
// module's DLM: prefix.
const progressTemplate = "download:" + progressPrefix +
	"%(progress._percent_str)s|%(progress.downloaded_bytes)s|%(progress.total_bytes)s|" +
	"%(progress.total_bytes_estimate)s|%(progress.speed)s|%(progress.eta)s"

var videoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/watch`),
	regexp.MustCompile(`youtube\.com/shorts/`),
	regexp.MustCompile(`youtu\.be/`),
	regexp.MustCompile(`twitter\.com/.*/status/`),
	regexp.MustCompile(`x\.com/.*/status/`),
	regexp.MustCompile(`tiktok\.com/`),
	regexp.MustCompile(`instagram\.com/(p|reel|reels)/`),
	regexp.MustCompile(`vimeo\.com/`),
	regexp.MustCompile(`twitch\.tv/`),
	regexp.MustCompile(`dailymotion\.com/`),
	regexp.MustCompile(`facebook\.com/.*/videos/`),
	regexp.MustCompile(`reddit\.com/.*/comments/`),
	regexp.MustCompile(`streamable\.com/`),
	regexp.MustCompile(`v\.redd\.it/`),
}

// IsVideoURL reports whether rawURL matches a known video-hosting pattern
// and should be routed to this package instead of the HTTP transferors.
func IsVideoURL(rawURL string) bool {
	for _, re := range videoPatterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// ErrNotInstalled is returned when the configured binary is absent.
var ErrNotInstalled = errors.New("extractor: binary not installed")

// BinaryName is the extractor executable this package shells out to.
const BinaryName = "yt-dlp"

// ResolveBinary finds the extractor binary on PATH, falling back to
// <user-data>/dlm/bin/yt-dlp (no .exe suffix is added) the way ytdlp.rs lays its managed copy
// out under the app's data directory.
func ResolveBinary() (string, error) {
	if path, err := exec.LookPath(BinaryName); err == nil {
		return path, nil
	}
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		base = "."
	}
	managed := filepath.Join(base, "dlm", "bin", BinaryName)
	if _, err := os.Stat(managed); err == nil {
		return managed, nil
	}
	return "", ErrNotInstalled
}

// Format is one entry of Info.Formats.
type Format struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution"`
	Filesize   int64   `json:"filesize"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
	TBR        float64 `json:"tbr"`
}

// Info is the result of FetchInfo: a --dump-json probe, trimmed to the
// fields the control surface needs to offer a format choice.
type Info struct {
	Title    string   `json:"title"`
	Duration float64  `json:"duration"`
	Uploader string   `json:"uploader"`
	Formats  []Format `json:"formats"`
}

// FetchInfo runs "<bin> --dump-json --no-download --no-warnings
// --no-playlist <url>" and parses the resulting JSON document.
func FetchInfo(ctx context.Context, bin, rawURL string) (*Info, error) {
	cmd := exec.CommandContext(ctx, bin, "--dump-json", "--no-download", "--no-warnings", "--no-playlist", rawURL)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("extractor: fetch info: %w", err)
	}

	var raw struct {
		Title    string `json:"title"`
		Duration float64 `json:"duration"`
		Uploader string `json:"uploader"`
		Formats  []struct {
			FormatID   string  `json:"format_id"`
			Ext        string  `json:"ext"`
			Resolution string  `json:"resolution"`
			Filesize   float64 `json:"filesize"`
			VCodec     string  `json:"vcodec"`
			ACodec     string  `json:"acodec"`
			TBR        float64 `json:"tbr"`
		} `json:"formats"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("extractor: parse info: %w", err)
	}

	info := &Info{Title: raw.Title, Duration: raw.Duration, Uploader: raw.Uploader}
	for _, f := range raw.Formats {
		info.Formats = append(info.Formats, Format{
			FormatID:   f.FormatID,
			Ext:        f.Ext,
			Resolution: f.Resolution,
			Filesize:   int64(f.Filesize),
			VCodec:     f.VCodec,
			ACodec:     f.ACodec,
			TBR:        f.TBR,
		})
	}
	return info, nil
}

// Job describes one extractor-driven download.
type Job struct {
	ID                  string
	URL                 string
	FormatID            string
	OutputDir           string
	Bin                 string
	ConcurrentFragments int
	SpeedLimit          int64 // bytes/second, 0 = unlimited
	Sink                events.Sink
}

// Handle is the cancellation control for a running extractor job. Its
// cancel func is set by Run and stops the subprocess's context.
type Handle struct {
	cancelled atomic.Bool
	cancel    context.CancelFunc
}

// NewHandle creates an unstarted Handle.
func NewHandle() *Handle { return &Handle{} }

// Cancel kills the underlying process, if any, and marks the handle
// cancelled so Run's caller can distinguish a kill from a genuine failure.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
	if h.cancel != nil {
		h.cancel()
	}
}

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

// ErrCancelled mirrors transfer.ErrCancelled's substring contract so the
// control surface's worker-exit status mapping (§4.J) applies unchanged.
var ErrCancelled = errors.New("extractor: download cancelled")

// Run launches the extractor subprocess for job, streams its stdout,
// translates each DLM:-prefixed line into a ProgressEvent, and returns the
// final on-disk filename. A unique run token (not the job id) disambiguates
// the output template so two concurrent extractor jobs can never collide
// on a partially written temp name.
func Run(ctx context.Context, job *Job, h *Handle) (string, error) {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	defer cancel()

	runToken := uuid.NewString()
	outputTemplate := filepath.Join(job.OutputDir, "."+runToken+"_%(title)s.%(ext)s")

	args := []string{
		"--newline", "--progress", "--progress-template", progressTemplate,
		"-f", job.FormatID,
		"-o", outputTemplate,
		"--no-playlist",
	}
	if job.ConcurrentFragments > 1 {
		args = append(args, "--concurrent-fragments", strconv.Itoa(job.ConcurrentFragments))
	}
	if job.SpeedLimit > 0 {
		args = append(args, "--limit-rate", strconv.FormatInt(job.SpeedLimit/1024, 10)+"K")
	}
	args = append(args, job.URL)

	cmd := exec.CommandContext(runCtx, job.Bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("extractor: stdout pipe: %w", err)
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("extractor: start: %w", err)
	}

	var finalFilename string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, progressPrefix) {
			if p, ok := parseProgressLine(line, job.ID); ok && job.Sink != nil {
				job.Sink.Publish(p)
			}
			continue
		}
		if idx := strings.Index(line, "Destination:"); idx >= 0 {
			finalFilename = strings.TrimSpace(line[idx+len("Destination:"):])
			continue
		}
		if idx := strings.Index(line, "Merging formats into"); idx >= 0 {
			name := strings.Trim(strings.TrimSpace(line[idx+len("Merging formats into"):]), `"`)
			if name != "" {
				finalFilename = name
			}
			if job.Sink != nil {
				job.Sink.Publish(events.ProgressEvent{ID: job.ID, Status: events.StatusMerging})
			}
			continue
		}
		if strings.Contains(line, "has already been downloaded") {
			for _, part := range strings.Fields(line) {
				if hasVideoExt(part) {
					finalFilename = part
					break
				}
			}
		}
	}

	waitErr := cmd.Wait()
	if h.Cancelled() {
		return "", ErrCancelled
	}
	if waitErr != nil {
		return "", fmt.Errorf("extractor: %w", waitErr)
	}

	utils.Debug("extractor: finished job %s -> %s", job.ID, finalFilename)
	return filepath.Base(finalFilename), nil
}

func hasVideoExt(s string) bool {
	for _, ext := range []string{".mp4", ".webm", ".mkv", ".m4a"} {
		if strings.HasSuffix(s, ext) {
			return true
		}
	}
	return false
}

// parseProgressLine parses one DLM:-prefixed line into a ProgressEvent,
// implementing video.rs's parse_progress_line: "NA" sentinel fields parse
// as 0/absent, and when a valid percent and downloaded-byte count are
// available, total is inferred from them whenever the reported total is
// absent, suspiciously small, or smaller than what's already downloaded.
func parseProgressLine(line, id string) (events.ProgressEvent, bool) {
	content := strings.TrimPrefix(line, progressPrefix)
	parts := strings.Split(content, "|")
	if len(parts) < 6 {
		return events.ProgressEvent{}, false
	}

	percent := parseNum(strings.TrimSuffix(strings.TrimSpace(parts[0]), "%"))
	downloaded := int64(parseNum(parts[1]))
	totalExact := int64(parseNum(parts[2]))
	totalEst := int64(parseNum(parts[3]))
	speed := parseNum(parts[4])

	total := totalExact
	if total == 0 {
		total = totalEst
	}

	if percent > 0.01 && downloaded > 0 {
		inferred := int64(float64(downloaded) / (percent / 100.0))
		if total == 0 || total < 50*1024 || total < downloaded {
			total = inferred
		}
	}

	return events.ProgressEvent{
		ID:         id,
		Downloaded: downloaded,
		Total:      total,
		Speed:      speed,
		Status:     events.StatusDownloading,
		Chunks:     []events.SegmentProgress{{ID: 0, Downloaded: downloaded, Total: total}},
	}, true
}

// parseNum parses a numeric field that may be the literal "NA" sentinel,
// returning 0 in that case rather than an error.
func parseNum(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "NA") {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
