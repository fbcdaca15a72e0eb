// Package plantid is a client for the plant.id identification API.
package plantid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	apperrors "go-plant-identifier/internal/errors"
	"go-plant-identifier/internal/strategy"
	"go-plant-identifier/pkg/models"
)

var (
	// ErrNoSuggestions is returned when the service answers without candidates
	ErrNoSuggestions = errors.New("response has no suggestions")
	// ErrNoPlantDetails is returned when the first candidate has no details
	ErrNoPlantDetails = errors.New("first suggestion has no plant_details")
)

// Identifier performs a single identification call. It never retries.
type Identifier interface {
	Identify(ctx context.Context, req Request) (*models.PlantDetails, error)
}

// Request is built fresh for every attempt
type Request struct {
	Image *models.ImageBlob
	Organ string
}

// Client calls the identification endpoint
type Client struct {
	endpoint   string
	apiKey     string
	organ      string
	httpClient *http.Client
}

var _ Identifier = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a client. organ is sent with every request unless the request
// names its own.
func New(endpoint, apiKey, organ string, timeout time.Duration, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("plant.id endpoint required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &Client{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(apiKey),
		organ:    strings.TrimSpace(organ),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				ResponseHeaderTimeout: timeout * 2 / 3,
				TLSHandshakeTimeout:   timeout / 3,
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   2,
				IdleConnTimeout:       30 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// NewRequest builds the request for one attempt with the client's organ hint
func (c *Client) NewRequest(image *models.ImageBlob) Request {
	return Request{Image: image, Organ: c.organ}
}

// Identify posts the image and returns suggestions[0].plant_details. Every
// failure is a request error.
func (c *Client) Identify(ctx context.Context, req Request) (*models.PlantDetails, error) {
	details, err := c.identify(ctx, req)
	if err != nil {
		return nil, apperrors.NewRequestError("identification request failed", err)
	}
	return details, nil
}

func (c *Client) identify(ctx context.Context, req Request) (*models.PlantDetails, error) {
	if req.Image.Empty() {
		return nil, errors.New("image required")
	}
	organ := req.Organ
	if organ == "" {
		organ = c.organ
	}

	body, contentType, err := encodeForm(req.Image, organ)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "Go-Plant-Identifier/1.0")
	if c.apiKey != "" {
		httpReq.Header.Set("Api-Key", c.apiKey)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("plant.id returned (latency=%v): %w", latency,
			&strategy.StatusError{StatusCode: resp.StatusCode, Body: truncate(string(payload), 200)})
	}

	return ParseResponse(payload)
}

// ParseResponse extracts the first suggestion's details from a payload
func ParseResponse(payload []byte) (*models.PlantDetails, error) {
	var decoded models.IdentifyResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode plant.id response: %w", err)
	}
	if len(decoded.Suggestions) == 0 {
		return nil, ErrNoSuggestions
	}
	details := decoded.Suggestions[0].PlantDetails
	if details == nil {
		return nil, ErrNoPlantDetails
	}
	return details, nil
}

func encodeForm(image *models.ImageBlob, organ string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	filename := image.Filename
	if filename == "" {
		filename = "image.jpg"
	}
	contentType := image.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="images"; filename="%s"`, escapeQuotes(filename)))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, "", fmt.Errorf("error writing image data: %w", err)
	}

	if err := writer.WriteField("organs", organ); err != nil {
		return nil, "", fmt.Errorf("error writing organs field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("error closing multipart writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
