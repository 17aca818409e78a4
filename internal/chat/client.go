// Package chat is the single-attempt boundary to the multimodal inference
// endpoint. It speaks the OpenAI-compatible chat completions protocol served
// by LM Studio, llama.cpp server, Ollama and vLLM.
//
// Each Infer call sends exactly one HTTP request and classifies the result as
// success, retryable or fatal. Retry policy lives in the pipeline, not here.
package chat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20

// Shape hints what kind of answer the caller expects.
type Shape struct {
	// MaxTokens bounds the completion length. A score needs a handful of
	// tokens, structured tags need a few thousand.
	MaxTokens int
	// JSON asks the server for a JSON object when the client runs in JSON mode.
	JSON bool
}

// Request is one image plus the instruction to apply to it.
type Request struct {
	Image       []byte
	MIMEType    string
	Instruction string
	Shape       Shape
}

// Options configures a Client.
type Options struct {
	EndpointURL string
	Model       string
	APIKey      string
	Timeout     time.Duration
	// JSONMode sends response_format=json_object for requests whose Shape.JSON is set.
	// Not every local server supports it, so it is opt-in.
	JSONMode bool
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client sends inference requests to one endpoint. It is safe for concurrent use.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	jsonMode   bool
	httpClient *http.Client
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		endpoint:   opts.EndpointURL,
		model:      opts.Model,
		apiKey:     opts.APIKey,
		jsonMode:   opts.JSONMode,
		httpClient: hc,
	}
}

// Endpoint returns the configured chat completions URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// EncodeDataURL embeds raw image bytes in a data URL. The bytes are not
// re-encoded, only base64-wrapped.
func EncodeDataURL(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (c *Client) buildBody(req Request) ([]byte, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Instruction},
				{Type: "image_url", ImageURL: &imageURL{URL: EncodeDataURL(req.Image, req.MIMEType)}},
			},
		}},
		MaxTokens: req.Shape.MaxTokens,
	}
	if c.jsonMode && req.Shape.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return json.Marshal(body)
}

// Infer sends one request and returns the model's text. Failures are always
// a *FailureError whose Kind tells the caller whether retrying is worthwhile.
func (c *Client) Infer(ctx context.Context, req Request) (string, error) {
	if len(req.Image) == 0 {
		return "", FatalFailure("empty image", nil)
	}

	payload, err := c.buildBody(req)
	if err != nil {
		return "", FatalFailure("failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", FatalFailure("failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// timeouts, refused connections, resets: all transient from our side
		return "", RetryableFailure("request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &FailureError{Kind: Retryable, StatusCode: resp.StatusCode, Reason: "failed to read response", Err: err}
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Int("request_bytes", len(payload)).
		Int("response_bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Inference response received")

	if fe := classifyStatus(resp.StatusCode, body); fe != nil {
		return "", fe
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &FailureError{Kind: Retryable, StatusCode: resp.StatusCode, Reason: "malformed response body", Err: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &FailureError{Kind: Retryable, StatusCode: resp.StatusCode, Reason: "response has no choices"}
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", &FailureError{Kind: Retryable, StatusCode: resp.StatusCode, Reason: "empty model output"}
	}
	return content, nil
}

// classifyStatus returns nil for 2xx. 408 and 429 are transient despite
// being 4xx; every other 4xx is a request the server will keep rejecting.
func classifyStatus(code int, body []byte) *FailureError {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return &FailureError{Kind: Retryable, StatusCode: code, Reason: "endpoint busy", Err: bodyError(body)}
	case code >= 400 && code < 500:
		return &FailureError{Kind: Fatal, StatusCode: code, Reason: "endpoint rejected request", Err: bodyError(body)}
	default:
		return &FailureError{Kind: Retryable, StatusCode: code, Reason: "endpoint error", Err: bodyError(body)}
	}
}

func bodyError(body []byte) error {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return nil
	}
	if len(text) > 200 {
		cut := 200
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return errors.New(text)
}

// ModelsURL derives the /models listing URL from the chat completions URL,
// used by the startup probe.
func (c *Client) ModelsURL() string {
	base := strings.TrimSuffix(c.endpoint, "/")
	if i := strings.LastIndex(base, "/chat/completions"); i >= 0 {
		return base[:i] + "/models"
	}
	return base
}

// Probe issues a GET against ModelsURL and returns the HTTP status code.
// It does not interpret the status; see auth.ValidateEndpoint.
func (c *Client) Probe(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ModelsURL(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build probe request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return resp.StatusCode, nil
}
