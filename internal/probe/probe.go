// Package probe implements component E: a single HEAD request that learns
// a resource's size, resumability, and a filename hint. Grounded on the
// teacher's internal/engine/probe.go (redirect-preserving client; the
// request is made once, without retries) and the reference implementation's commands.rs::fetch_url_info,
// simplified to the spec's HEAD-only contract (no mirrors, no proxy).
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/vfaronov/httpheader"

	"github.com/teal33t/dlm/internal/utils"
)

// ErrProbeFailed is returned when the client cannot be built, the request
// errors, or the response status is not 2xx.
var ErrProbeFailed = errors.New("probe: failed")

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const probeTimeout = 30 * time.Second

// Result is the UrlInfo produced by a successful probe.
type Result struct {
	URL       string // final URL after redirects
	Size      int64  // Content-Length, 0 if absent
	HasSize   bool
	Resumable bool
	Filename  string
	ContentType string
}

// Client issues probes. Build one with New: Probe on a zero-value Client
// fails with ErrProbeFailed because it has no HTTP client.
type Client struct {
	UserAgent string
	http      *http.Client
}

// New builds a Client with a redirect-preserving *http.Client, following up
// to 10 redirects as required by §6's HTTP contract.
func New(userAgent string) *Client {
	return &Client{
		UserAgent: userAgent,
		http: &http.Client{
			Timeout: probeTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("%w: stopped after 10 redirects", ErrProbeFailed)
				}
				return nil
			},
		},
	}
}

// Probe issues a HEAD request for rawURL and reports size, resumability,
// and a filename hint per §4.E.
func (c *Client) Probe(ctx context.Context, rawURL string, headers map[string]string) (*Result, error) {
	if c.http == nil {
		return nil, fmt.Errorf("%w: client not initialized", ErrProbeFailed)
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		ua := c.UserAgent
		if ua == "" {
			ua = defaultUserAgent
		}
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	utils.Debug("probe: %s -> %d", rawURL, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrProbeFailed, resp.StatusCode)
	}

	result := &Result{
		URL:         resp.Request.URL.String(),
		Resumable:   resp.Header.Get("Accept-Ranges") == "bytes",
		ContentType: resp.Header.Get("Content-Type"),
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			result.Size = n
			result.HasSize = true
		}
	}

	result.Filename = determineFilename(resp, result.URL, rawURL)

	return result, nil
}

// determineFilename implements §4.E's fallback chain: Content-Disposition
// filename parameter, basename of the final URL, basename of the original
// URL, literal "download".
func determineFilename(resp *http.Response, finalURL, originalURL string) string {
	if _, name, err := httpheader.ContentDisposition(resp.Header); err == nil && name != "" {
		return name
	}
	if name := basenameOf(finalURL); name != "" {
		return name
	}
	if name := basenameOf(originalURL); name != "" {
		return name
	}
	return "download"
}

func basenameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return ""
	}
	return base
}
