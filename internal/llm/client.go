// Package llm handles communication with the OpenRouter chat completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inkwell-ai/inkwell/internal/config"
	"github.com/inkwell-ai/inkwell/internal/observability"
)

// ErrUnavailable indicates the backend cannot be used at all: no API key is
// configured, or every retry was exhausted. Callers branch to the local
// fallback on this error.
var ErrUnavailable = errors.New("generation backend unavailable")

// BackendError is a non-2xx response from the backend.
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Body)
}

// Client handles communication with the OpenRouter API.
type Client struct {
	apiKey      string
	model       string
	visionModel string
	baseURL     string
	maxTokens   int
	temperature float64
	maxRetries  int
	httpClient  *http.Client
	logger      *observability.Logger
}

// Message represents a chat message.
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image).
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message.
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Response represents the API response structure.
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice represents a single completion choice.
type Choice struct {
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// ChoiceMessage is the assistant message inside a choice.
type ChoiceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is a single text generation call.
type GenerateRequest struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature *float64
}

// NewClient creates a new LLM client from backend configuration.
func NewClient(cfg config.BackendConfig, logger *observability.Logger) *Client {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
		baseURL:     cfg.BaseURL,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Available reports whether the client has credentials to reach the backend.
func (c *Client) Available() bool {
	return c.apiKey != ""
}

// Generate sends a text prompt and returns the completion content.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if !c.Available() {
		return "", ErrUnavailable
	}

	var messages []Message
	if req.System != "" {
		messages = append(messages, Message{
			Role:    "system",
			Content: []ContentPart{{Type: "text", Text: req.System}},
		})
	}
	messages = append(messages, Message{
		Role:    "user",
		Content: []ContentPart{{Type: "text", Text: req.Prompt}},
	})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	return c.complete(ctx, &Request{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
}

// Transcribe sends one or more page images to the vision model and returns
// the transcribed text.
func (c *Client) Transcribe(ctx context.Context, images [][]byte) (string, error) {
	if !c.Available() {
		return "", ErrUnavailable
	}
	if len(images) == 0 {
		return "", errors.New("no images to transcribe")
	}

	parts := []ContentPart{{
		Type: "text",
		Text: "Transcribe all text visible in these images of handwritten or printed notes. " +
			"Preserve the original structure and line breaks. Output only the transcribed text " +
			"with no commentary.",
	}}
	for _, img := range images {
		parts = append(parts, ContentPart{
			Type: "image_url",
			ImageURL: &ImageURL{
				URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img),
			},
		})
	}

	return c.complete(ctx, &Request{
		Model:       c.visionModel,
		Messages:    []Message{{Role: "user", Content: parts}},
		MaxTokens:   c.maxTokens,
		Temperature: 0,
	})
}

func (c *Client) complete(ctx context.Context, req *Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("X-Title", "Inkwell")
		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &BackendError{Status: resp.StatusCode, Body: string(bodyBytes)}
	}

	var apiResp Response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return apiResp.Choices[0].Message.Content, nil
}

// retryWithBackoff retries the request on transport errors and retryable
// status codes with exponential backoff.
func (c *Client) retryWithBackoff(ctx context.Context, do func() (*http.Response, error)) (*http.Response, error) {
	retries := c.maxRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			c.logger.Debug().Int("attempt", attempt).Msg("retrying backend request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, err := do()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = &BackendError{Status: resp.StatusCode, Body: string(bodyBytes)}
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}
