package museumapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/museumbook/internal/booking"
	"github.com/wolfman30/museumbook/pkg/logging"
)

const (
	defaultTimeout  = 30 * time.Second
	maxErrorBodyLen = 300
)

var tracer = otel.Tracer("museumbook.internal.museumapi")

// ErrUnauthorized is matched by every 401 APIError. The session has already
// been cleared when it is returned.
var ErrUnauthorized = errors.New("museumapi: unauthorized, log in again")

// APIError is a non-2xx response from the booking API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("museum API %s %s returned %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("museum API %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Temporary reports whether repeating the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// TokenSource supplies the bearer token and is told when the server rejects it.
type TokenSource interface {
	Token() string
	Clear()
}

// Client wraps the REST calls used by the booking UI.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logger     *logging.Logger
}

// NewClient constructs a booking API client. tokens may be nil for
// unauthenticated use.
func NewClient(baseURL string, tokens TokenSource, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		logger:     logger,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpClient.Timeout = d
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type call struct {
	method string
	path   string
	query  url.Values
	body   any
	token  string // overrides the token source when set
}

// envelope is the {success, data, message} wrapper most endpoints use.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func (c *Client) do(ctx context.Context, in call, out any) error {
	endpoint := c.baseURL + in.path
	if len(in.query) > 0 {
		endpoint += "?" + in.query.Encode()
	}

	ctx, span := tracer.Start(ctx, "museumapi."+strings.ToLower(in.method))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", in.method),
		attribute.String("museumbook.path", in.path),
	)

	var bodyReader io.Reader
	if in.body != nil {
		payload, err := json.Marshal(in.body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, in.method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := in.token
	if token == "" && c.tokens != nil {
		token = c.tokens.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("museum API call",
		"method", in.method,
		"path", in.path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Method:     in.method,
			Path:       in.path,
			Message:    errorMessage(respBody),
		}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil {
			c.tokens.Clear()
			c.logger.Warn("museum API rejected credentials, session cleared", "path", in.path)
			return apiErr
		}
		c.logger.Warn("museum API non-2xx response", "status", resp.StatusCode, "path", in.path, "message", booking.ScrubIDNumbers(apiErr.Message))
		return apiErr
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err == nil && env.Success != nil && !*env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode, Method: in.method, Path: in.path, Message: errorMessage(respBody)}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "request rejected")
		return apiErr
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := decodePayload(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodePayload unwraps a {data: ...} envelope when present and decodes the
// payload (or the bare body) into out.
func decodePayload(body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(body, out)
}

func errorMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBodyLen {
		msg = msg[:maxErrorBodyLen]
	}
	return msg
}

// decodeList accepts either a bare JSON array or an object holding the array
// under one of the given field names.
func decodeList[T any](raw json.RawMessage, fields ...string) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	for _, f := range fields {
		if v, ok := obj[f]; ok {
			var items []T
			if err := json.Unmarshal(v, &items); err != nil {
				return nil, err
			}
			return items, nil
		}
	}
	return nil, nil
}
