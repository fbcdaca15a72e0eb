package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"go-plant-identifier/internal/strategy"
	"go-plant-identifier/pkg/models"
)

// ImageFetcher downloads an image to be identified
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) (*models.ImageBlob, error)
}

// HTTPImageFetcher implements ImageFetcher over plain HTTP(S)
type HTTPImageFetcher struct {
	client   *http.Client
	retry    strategy.RetryStrategy
	maxBytes int64
}

// FetcherOption configures an HTTPImageFetcher
type FetcherOption func(*HTTPImageFetcher)

// WithRetryStrategy replaces the default linear backoff
func WithRetryStrategy(s strategy.RetryStrategy) FetcherOption {
	return func(f *HTTPImageFetcher) {
		if s != nil {
			f.retry = s
		}
	}
}

// WithMaxBytes caps the downloaded body size
func WithMaxBytes(n int64) FetcherOption {
	return func(f *HTTPImageFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// NewHTTPImageFetcher creates an HTTP image fetcher with a 3 attempt linear
// backoff that never retries 4xx responses.
func NewHTTPImageFetcher(timeout time.Duration, opts ...FetcherOption) ImageFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
		TLSClientConfig:        &tls.Config{MinVersion: tls.VersionTLS12},
	}

	f := &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		retry:    strategy.NewLinearBackoff(3, time.Second),
		maxBytes: 10 * 1024 * 1024,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) (*models.ImageBlob, error) {
	var lastErr error
	attempts := h.retry.MaxAttempts()

	for attempt := 0; attempt < attempts; attempt++ {
		blob, err := h.fetchOnce(ctx, imageURL)
		if err == nil {
			return blob, nil
		}
		lastErr = err

		if ctx.Err() != nil || !h.retry.ShouldRetry(attempt, err) {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch image: %w", ctx.Err())
		case <-time.After(h.retry.Delay(attempt)):
		}
	}

	return nil, fmt.Errorf("failed to fetch image after %d attempts: %w", attempts, lastErr)
}

func (h *HTTPImageFetcher) fetchOnce(ctx context.Context, imageURL string) (*models.ImageBlob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "Go-Plant-Identifier/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		kind := "server error"
		statusErr := &strategy.StatusError{StatusCode: resp.StatusCode}
		if statusErr.ClientError() {
			kind = "client error"
		}
		return nil, fmt.Errorf("%s: %w", kind, statusErr)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > h.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", h.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}

	return &models.ImageBlob{
		Filename:    filenameFromURL(req.URL.Path),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func filenameFromURL(urlPath string) string {
	name := path.Base(urlPath)
	if name == "." || name == "/" || strings.TrimSpace(name) == "" {
		return "image"
	}
	return name
}
