// Package gateway talks to the remote conversation service. Every call may
// fail with a chat.NetworkError (connectivity, 5xx) or chat.AuthError (401);
// the caller decides what to do about either.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"ChatSync/internal/chat"
	"ChatSync/internal/config"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Client is a stateless HTTP client for the conversation and inference
// endpoints.
type Client struct {
	baseURL     string
	token       string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      *slog.Logger
	tracer      trace.Tracer
	meter       metric.Meter
}

// NewClient creates a gateway client from config.
func NewClient(cfg config.Config, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.APIToken,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		logger:      logger,
		tracer:      tracer,
		meter:       meter,
	}
}

// CreateConversation creates a server-side conversation and returns the
// canonical record with its remote id.
func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest) (Conversation, error) {
	ctx, span := c.tracer.Start(ctx, "create_conversation")
	defer span.End()

	var conv Conversation
	if err := c.postJSON(ctx, "/conversations/", req, &conv); err != nil {
		return Conversation{}, err
	}
	c.logger.Info("conversation created", "conversation_id", conv.ID)
	return conv, nil
}

// ListConversations fetches the full snapshot of conversations the
// authenticated user owns.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	ctx, span := c.tracer.Start(ctx, "list_conversations")
	defer span.End()

	var convs []Conversation
	if err := c.getJSON(ctx, "/conversations/", &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// GetConversation fetches a single conversation by remote id.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	ctx, span := c.tracer.Start(ctx, "get_conversation")
	defer span.End()

	var conv Conversation
	if err := c.getJSON(ctx, "/conversations/"+conversationID, &conv); err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

// AppendMessage persists a user message server-side. With image data the
// request goes out as multipart, otherwise plain JSON. The engine's own
// send path does not use this; the inference call persists the turn per the
// backend contract.
func (c *Client) AppendMessage(ctx context.Context, conversationID, content string, image []byte) (ConversationMessage, error) {
	ctx, span := c.tracer.Start(ctx, "append_message")
	defer span.End()

	path := "/conversations/" + conversationID + "/messages"

	var msg ConversationMessage
	if image == nil {
		if err := c.postJSON(ctx, path, map[string]string{"content": content}, &msg); err != nil {
			return ConversationMessage{}, err
		}
		return msg, nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("content", content); err != nil {
		return ConversationMessage{}, fmt.Errorf("failed to write content field: %w", err)
	}
	part, err := w.CreateFormFile("image", "image")
	if err != nil {
		return ConversationMessage{}, fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return ConversationMessage{}, fmt.Errorf("failed to write image part: %w", err)
	}
	if err := w.Close(); err != nil {
		return ConversationMessage{}, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	if err := c.do(ctx, "POST", path, &buf, w.FormDataContentType(), &msg); err != nil {
		return ConversationMessage{}, err
	}
	return msg, nil
}

// SendInferenceQuery triggers generation. The backend persists the user
// turn and the assistant turn; the caller only needs the answer.
func (c *Client) SendInferenceQuery(ctx context.Context, query, imageData, conversationID string) (InferenceResponse, error) {
	ctx, span := c.tracer.Start(ctx, "inference_query")
	defer span.End()

	req := InferenceRequest{
		Query:          query,
		Model:          c.model,
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ConversationID: conversationID,
		ImageData:      imageData,
	}

	var resp InferenceResponse
	if err := c.postJSON(ctx, "/agent/chat", req, &resp); err != nil {
		return InferenceResponse{}, err
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, "POST", path, bytes.NewBuffer(jsonData), "application/json", out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, "GET", path, nil, "", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("content-type", contentType)
	}
	if method != "GET" {
		// Lets the backend dedupe a retried mutation.
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := c.httpClient.Do(req)
	c.recordDuration(ctx, time.Since(start))
	if err != nil {
		return &chat.NetworkError{Message: "failed to send request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &chat.NetworkError{Message: "failed to read response", Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &chat.AuthError{Message: "session expired or invalid token", Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &chat.NetworkError{
			Message: fmt.Sprintf("API error: %s - %s", resp.Status, string(respBody)),
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &chat.NetworkError{Message: "failed to unmarshal response", Err: err}
		}
	}
	return nil
}

func (c *Client) recordDuration(ctx context.Context, d time.Duration) {
	histogram, err := c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(d.Milliseconds()))
	}
}
