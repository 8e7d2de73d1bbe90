// Package embedding talks to the face embedding server that turns a
// pre-aligned face crop into a fixed-length vector.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/facematch"
	"github.com/kozaktomas/attendance-tracker/internal/logger"
)

const defaultEmbeddingURL = "http://localhost:8000"

// Client is an EmbeddingBackend backed by the embedding server's HTTP API.
type Client struct {
	baseURL string
	dim     int
	client  *http.Client
	log     *logger.Logger

	loaded atomic.Bool
	model  atomic.Value // string
}

var _ facematch.EmbeddingBackend = (*Client)(nil)

// NewClient creates a client expecting vectors of length dim.
func NewClient(baseURL string, dim int, timeout time.Duration, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		client:  &http.Client{Timeout: timeout},
		log:     logger.OrNop(log).With("component", "embedding"),
	}
}

// healthResponse represents the response from the /health endpoint
type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Dim    int    `json:"dim"`
}

// embeddingResponse represents the response from the embedding server
type embeddingResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// Load checks that the server is up and serves vectors of the expected length.
func (c *Client) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("embedding server health check: %w", err)
	}

	var health healthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("failed to parse health response: %w", err)
	}
	if health.Dim != 0 && health.Dim != c.dim {
		return fmt.Errorf("%w: server model %q produces %d, want %d",
			facematch.ErrDimensionMismatch, health.Model, health.Dim, c.dim)
	}

	c.model.Store(health.Model)
	c.loaded.Store(true)
	c.log.Info("embedding backend loaded", "url", c.baseURL, "model", health.Model, "dim", c.dim)
	return nil
}

// Unload marks the backend unavailable; further Embed calls fail fast.
func (c *Client) Unload() {
	if c.loaded.Swap(false) {
		c.log.Info("embedding backend unloaded")
	}
}

func (c *Client) IsLoaded() bool {
	return c.loaded.Load()
}

// Model returns the model name reported by the server, empty before Load.
func (c *Client) Model() string {
	m, _ := c.model.Load().(string)
	return m
}

// Embed posts img as PNG and returns the raw vector.
func (c *Client) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if !c.IsLoaded() {
		return nil, facematch.ErrBackendNotLoaded
	}

	var encoded bytes.Buffer
	if err := png.Encode(&encoded, img); err != nil {
		return nil, fmt.Errorf("failed to encode face: %w", err)
	}

	body, err := c.postMultipartImage(ctx, "/embed/aligned", encoded.Bytes())
	if err != nil {
		return nil, err
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	if len(embResp.Embedding) != c.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", facematch.ErrDimensionMismatch, len(embResp.Embedding), c.dim)
	}
	return embResp.Embedding, nil
}

// postMultipartImage constructs a multipart form with the PNG data and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="face.png"`)
	h.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
