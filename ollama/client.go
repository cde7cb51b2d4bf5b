package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nijaru/yt-tldr/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	chatPath           = "/api/chat"
	tagsPath           = "/api/tags"
	defaultBaseURL     = "http://127.0.0.1:11434"
	defaultListTimeout = 5 * time.Second
	maxResponseBody    = 16 * 1024 * 1024
	maxErrorBody       = 4 * 1024
)

var errInferenceTimeout = stderrors.New("inference timeout elapsed")

// Client talks to an Ollama-compatible chat API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	listTimeout time.Duration
	logger      *logrus.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the HTTP client. It should carry no client-level
// timeout, since inference calls may legitimately run for minutes.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithListTimeout sets the ceiling for model listing.
func WithListTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.listTimeout = timeout
		}
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{},
		listTimeout: defaultListTimeout,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat sends a single non-streaming chat request and returns the reply text.
// A zero timeout waits for as long as the backend and the caller allow.
func (c *Client) Chat(ctx context.Context, req ChatRequest, model string, timeout time.Duration) (string, error) {
	const op = "ollama.Chat"

	req.Model = model
	req.Stream = false

	body, err := json.Marshal(req)
	if err != nil {
		return "", errors.Internal(op, err, "Failed to encode inference request")
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeoutCause(ctx, timeout, errInferenceTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return "", errors.Internal(op, err, "Failed to build inference request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", c.transportError(ctx, callCtx, op, err, timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := readErrorBody(resp.Body)
		if resp.StatusCode == http.StatusNotFound || strings.Contains(text, "not found") {
			return "", errors.BackendError(op, statusError(resp.StatusCode, text), c.modelNotFoundMessage(ctx, model))
		}
		if text == "" {
			text = fmt.Sprintf("Inference backend returned HTTP %d", resp.StatusCode)
		}
		return "", errors.BackendError(op, statusError(resp.StatusCode, text), text)
	}

	var reply chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&reply); err != nil {
		if callCtx.Err() != nil {
			return "", c.transportError(ctx, callCtx, op, err, timeout)
		}
		return "", errors.BackendError(op, pkgerrors.Wrap(err, "decode chat response"), "Malformed response from inference backend")
	}
	if reply.Error != "" {
		return "", errors.BackendError(op, nil, reply.Error)
	}
	if reply.Message == nil || strings.TrimSpace(reply.Message.Content) == "" {
		return "", errors.BackendError(op, nil, "Inference backend returned no text")
	}

	c.logger.WithContext(ctx).WithFields(logrus.Fields{
		"model":    model,
		"duration": time.Since(start).String(),
		"chars":    len(reply.Message.Content),
	}).Debug("Inference completed")

	return reply.Message.Content, nil
}

// transportError maps a failed round trip. The timeout kind is reported only when
// our own deadline fired, not when the caller canceled or the backend failed fast.
func (c *Client) transportError(parent, callCtx context.Context, op string, err error, timeout time.Duration) error {
	switch {
	case context.Cause(callCtx) == errInferenceTimeout:
		return errors.BackendTimeout(op, err, fmt.Sprintf("Inference timed out after %s", timeout))
	case parent.Err() != nil:
		return errors.Canceled(op, parent.Err())
	case isUnreachable(err):
		return errors.BackendUnavailable(op, err, fmt.Sprintf("Inference backend at %s is unreachable", c.baseURL))
	default:
		return errors.BackendError(op, err, "Inference request failed")
	}
}

func isUnreachable(err error) bool {
	var opErr *net.OpError
	if stderrors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return stderrors.As(err, &dnsErr)
}

func (c *Client) modelNotFoundMessage(ctx context.Context, model string) string {
	suggestion := "No local models found. Pull one, e.g.: ollama pull llama3:8b"
	names, err := c.ListModels(ctx)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Debug("Could not list models for suggestion")
	} else if len(names) > 0 {
		suggestion = "Installed models: " + strings.Join(names, ", ")
	}
	return fmt.Sprintf("Model '%s' not found. Pull it with: ollama pull %s. %s", model, model, suggestion)
}

// ListModels returns the names of locally installed models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	const op = "ollama.ListModels"

	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tagsPath, nil)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to build model list request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.BackendUnavailable(op, err, "Inference backend is unavailable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.BackendUnavailable(op, statusError(resp.StatusCode, readErrorBody(resp.Body)), "Inference backend is unavailable")
	}

	var tags tagsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&tags); err != nil {
		return nil, errors.BackendUnavailable(op, pkgerrors.Wrap(err, "decode tags"), "Inference backend is unavailable")
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	text := strings.TrimSpace(string(data))

	// Ollama wraps failures as {"error": "..."}.
	var wrapped struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &wrapped) == nil && wrapped.Error != "" {
		return wrapped.Error
	}
	return text
}

func statusError(code int, body string) error {
	return pkgerrors.Errorf("http %d: %s", code, body)
}
