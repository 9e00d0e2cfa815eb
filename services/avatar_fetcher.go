package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pilab-dev/shadow-social/domain"
	sociallog "github.com/pilab-dev/shadow-social/log"
)

const (
	DefaultAvatarTimeout    = 10 * time.Second
	DefaultAvatarMaxRetries = 2
	DefaultAvatarMaxBytes   = 5 << 20
)

// HTTPAvatarFetcher downloads profile images. Transient network failures and
// 5xx answers are retried; every attempt is bounded by the client timeout.
type HTTPAvatarFetcher struct {
	client   *retryablehttp.Client
	maxBytes int64
}

// AvatarFetcherConfig configures an HTTPAvatarFetcher. A zero Timeout or
// MaxBytes and a negative MaxRetries fall back to the defaults.
type AvatarFetcherConfig struct {
	Timeout    time.Duration
	MaxRetries int
	MaxBytes   int64
	// HTTPClient replaces the underlying client, mostly for tests.
	HTTPClient *http.Client
}

func NewHTTPAvatarFetcher(cfg AvatarFetcherConfig) *HTTPAvatarFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAvatarTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultAvatarMaxRetries
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultAvatarMaxBytes
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = sociallog.NewLeveledLogger("avatar-fetcher")
	if cfg.HTTPClient != nil {
		// Copy; the caller's client keeps its own timeout.
		hc := *cfg.HTTPClient
		client.HTTPClient = &hc
	}
	client.HTTPClient.Timeout = cfg.Timeout

	return &HTTPAvatarFetcher{client: client, maxBytes: cfg.MaxBytes}
}

// Fetch downloads url. Only image content types are accepted.
func (f *HTTPAvatarFetcher) Fetch(ctx context.Context, url string) (*domain.BinaryData, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build avatar request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download avatar: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("avatar has unexpected content type %q", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read avatar: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("avatar exceeds %d bytes", f.maxBytes)
	}

	return &domain.BinaryData{
		ContentType: mediaType,
		Length:      int64(len(body)),
		Filename:    avatarFilename(req.URL.Path, mediaType),
		Body:        bytes.NewReader(body),
	}, nil
}

func avatarFilename(urlPath, mediaType string) string {
	name := path.Base(urlPath)
	if name == "." || name == "/" || name == "" {
		name = "avatar"
	}
	if path.Ext(name) == "" {
		if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
			name += exts[0]
		}
	}
	return name
}

var _ AvatarFetcher = (*HTTPAvatarFetcher)(nil)
