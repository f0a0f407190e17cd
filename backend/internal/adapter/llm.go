package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "bizgraph-bot/backend/pkg/errors"
	"bizgraph-bot/backend/pkg/logger"
)

const maxRetries = 3

// LLMAdapter handles communication with any OpenAI-compatible chat endpoint
type LLMAdapter struct {
	client       *openai.Client
	model        string
	temperature  float32
	retryBackoff time.Duration
	mu           sync.RWMutex // Protects model field for concurrent access
	logger       *zap.Logger
}

// Option customizes an LLMAdapter
type Option func(*LLMAdapter)

// WithTemperature sets the default sampling temperature
func WithTemperature(t float32) Option {
	return func(a *LLMAdapter) { a.temperature = t }
}

// WithRetryBackoff sets the base delay between retries
func WithRetryBackoff(d time.Duration) Option {
	return func(a *LLMAdapter) { a.retryBackoff = d }
}

// SetModel updates the model used by this adapter
func (a *LLMAdapter) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("LLM adapter model updated", zap.String("model", model))
	}
}

// GetModel returns the current model
func (a *LLMAdapter) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// NewLLMAdapter creates a new LLM adapter. A bare host URL gets "/v1" appended;
// URLs that already carry a path (Gemini's /v1beta/openai) are used as-is.
func NewLLMAdapter(baseURL, apiKey, modelID string, timeout time.Duration, opts ...Option) *LLMAdapter {
	// Local proxies accept any key
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = normalizeBaseURL(baseURL)
	if timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: timeout}
	}

	a := &LLMAdapter{
		client:       openai.NewClientWithConfig(config),
		model:        modelID,
		temperature:  0.2,
		retryBackoff: time.Second,
		logger:       logger.Get(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func normalizeBaseURL(raw string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(trimmed)
	if err != nil || u.Path != "" {
		return trimmed
	}
	return trimmed + "/v1"
}

// Tool represents a function that can be called by the LLM
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition defines a function that can be called
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ChatMessage is one prior turn of a conversation
type ChatMessage struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request is a single completion request
type Request struct {
	System  string
	History []ChatMessage
	Message string
	Tools   []Tool
	// JSON asks the endpoint for a JSON object response
	JSON bool
}

// Response represents the LLM's response
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// ToolCall represents a function call from the LLM
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// Generate sends a request to the LLM and returns the response
func (a *LLMAdapter) Generate(ctx context.Context, r Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(r.History)+2)
	if r.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: r.System,
		})
	}
	for _, h := range r.History {
		role := openai.ChatMessageRoleUser
		if h.Role == openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: h.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: r.Message,
	})

	// Convert tools to OpenAI format
	openaiTools := make([]openai.Tool, 0, len(r.Tools))
	for _, tool := range r.Tools {
		openaiTools = append(openaiTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}

	currentModel := a.GetModel()

	req := openai.ChatCompletionRequest{
		Model:       currentModel,
		Messages:    messages,
		Temperature: a.temperature,
	}
	if len(openaiTools) > 0 {
		// ToolChoice defaults to "auto" when tools are provided
		req.Tools = openaiTools
	}
	if r.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	// Retry logic with linear backoff
	var resp openai.ChatCompletionResponse
	var err error
	attempts := 0
	retryable := true
	for attempt := 0; attempt < maxRetries && retryable; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * a.retryBackoff
			a.logger.Warn("Retrying LLM request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, apperrors.NewContextCancelled("llm request", ctx.Err())
			case <-time.After(backoff):
			}
		}

		attempts++
		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		retryable = isRetryableStatus(err)
		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.Int("attempt", attempts),
			zap.String("model", currentModel),
			zap.Bool("retryable", retryable),
		)

		if ctx.Err() != nil {
			return nil, apperrors.NewContextCancelled("llm request", ctx.Err())
		}
	}

	if err != nil {
		return nil, apperrors.NewAgentLLMFailed(currentModel, attempts, retryable, err)
	}

	if len(resp.Choices) == 0 {
		return nil, apperrors.ErrAgentNoResponse
	}

	choice := resp.Choices[0]
	response := &Response{
		Content:   choice.Message.Content,
		ToolCalls: []ToolCall{},
	}

	for _, tc := range choice.Message.ToolCalls {
		toolCall := ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
		}

		args, err := parseJSONArguments(tc.Function.Arguments)
		if err != nil {
			a.logger.Warn("Failed to parse tool call arguments",
				zap.String("tool_id", tc.ID),
				zap.Error(err),
			)
			args = make(map[string]interface{})
		}
		toolCall.Arguments = args

		response.ToolCalls = append(response.ToolCalls, toolCall)
	}

	a.logger.Debug("LLM response generated",
		zap.String("model", currentModel),
		zap.Int("tool_calls", len(response.ToolCalls)),
		zap.Bool("has_content", response.Content != ""),
	)

	return response, nil
}

// Chat is Generate without tools, returning only the text content
func (a *LLMAdapter) Chat(ctx context.Context, r Request) (string, error) {
	r.Tools = nil
	resp, err := a.Generate(ctx, r)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// isRetryableStatus treats rate limits, server errors and transport failures as transient
func isRetryableStatus(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

// parseJSONArguments parses the JSON string arguments into a map
func parseJSONArguments(jsonStr string) (map[string]interface{}, error) {
	var args map[string]interface{}
	if jsonStr == "" {
		return make(map[string]interface{}), nil
	}

	err := json.Unmarshal([]byte(jsonStr), &args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	return args, nil
}
