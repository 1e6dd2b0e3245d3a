package imageapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imagestudio/internal/infra"
)

// EndpointKind selects which remote operation a request targets.
type EndpointKind string

const (
	// EndpointEdit targets the image edit operation (single image, optional mask).
	EndpointEdit EndpointKind = "edit"
	// EndpointVisionGenerate targets reference-guided generation.
	EndpointVisionGenerate EndpointKind = "vision-generate"
)

// Both kinds ride the edits operation: it is the only one that accepts
// multipart image parts, and reference-guided generation is distinguished by
// the image[] parts and the vision-capable model, not by the path.
func (k EndpointKind) path() string {
	return "/images/edits"
}

// Descriptor is a single output image reference as returned by the API:
// either a URL to fetch or inline base64 bytes.
type Descriptor struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

// GenerationResult is the ordered set of output descriptors for one request.
type GenerationResult struct {
	Images []Descriptor
}

// ClientOptions configures the API client.
type ClientOptions struct {
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
}

// Client performs HTTP calls against the remote image API. It holds no
// request state and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
	maxRetries int
	backoff    time.Duration
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

type apiResponse struct {
	Data []Descriptor `json:"data"`
	Err  *apiError    `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Submit sends the payload to the selected endpoint under bearer auth and
// parses the response into an ordered result. Network and server-side
// failures are retried a bounded number of times; everything else surfaces
// immediately.
func (c *Client) Submit(ctx context.Context, payload Payload, apiKey string, kind EndpointKind) (*GenerationResult, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, wrapf(ErrUnauthorized, "no API key configured")
	}
	endpoint := c.baseURL + kind.path()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug().
				Str("endpoint", string(kind)).
				Int("attempt", attempt+1).
				Msg("retrying request")
			select {
			case <-time.After(c.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, wrapf(ErrNetwork, "%v", ctx.Err())
			}
		}
		result, err := c.submitOnce(ctx, endpoint, payload, apiKey)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) submitOnce(ctx context.Context, endpoint string, payload Payload, apiKey string) (*GenerationResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", payload.ContentType)
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, wrapf(ErrNetwork, "%v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapf(ErrNetwork, "read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp, raw)
	}

	var decoded apiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, wrapf(ErrBadRequest, "malformed response: %v", err)
	}
	if decoded.Err != nil {
		return nil, wrapf(ErrBadRequest, "%s", decoded.Err.Message)
	}
	if len(decoded.Data) == 0 {
		return nil, wrapf(ErrBadRequest, "response contained no images")
	}
	c.logger.Debug().Int("images", len(decoded.Data)).Msg("generation succeeded")
	return &GenerationResult{Images: decoded.Data}, nil
}

// classifyStatus maps a non-200 response onto the failure taxonomy. The
// upstream error message is carried along where present.
func classifyStatus(resp *http.Response, raw []byte) error {
	detail := upstreamMessage(raw)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return wrapf(ErrUnauthorized, "%s", detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		if after := strings.TrimSpace(resp.Header.Get("Retry-After")); after != "" {
			return wrapf(ErrRateLimited, "retry after %ss (%s)", after, detail)
		}
		return wrapf(ErrRateLimited, "%s", detail)
	case resp.StatusCode >= 500:
		return wrapf(ErrServerError, "status %d: %s", resp.StatusCode, detail)
	default:
		return wrapf(ErrBadRequest, "status %d: %s", resp.StatusCode, detail)
	}
}

func upstreamMessage(raw []byte) string {
	var decoded apiResponse
	if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Err != nil && decoded.Err.Message != "" {
		return decoded.Err.Message
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrServerError)
}
