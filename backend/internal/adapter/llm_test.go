package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "bizgraph-bot/backend/pkg/errors"
)

// fakeCompletions serves /v1/chat/completions with a canned assistant message
func fakeCompletions(t *testing.T, status int, message map[string]interface{}, seen func(map[string]interface{})) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if seen != nil {
			seen(body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"message": "upstream failure", "type": "server_error"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "test-model",
			"choices": []interface{}{
				map[string]interface{}{"index": 0, "message": message, "finish_reason": "stop"},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestLLMAdapter_Generate_Content(t *testing.T) {
	var captured map[string]interface{}
	srv, _ := fakeCompletions(t, http.StatusOK, map[string]interface{}{
		"role":    "assistant",
		"content": "Product 'ortho kit' added with price 500.",
	}, func(body map[string]interface{}) { captured = body })

	a := NewLLMAdapter(srv.URL, "", "test-model", time.Second)
	resp, err := a.Generate(context.Background(), Request{
		System:  "You keep books.",
		History: []ChatMessage{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
		Message: "Add product ortho kit price 500",
		JSON:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Product 'ortho kit' added with price 500.", resp.Content)
	assert.Empty(t, resp.ToolCalls)

	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, "assistant", messages[2].(map[string]interface{})["role"])
	assert.Equal(t, "json_object", captured["response_format"].(map[string]interface{})["type"])
	assert.Nil(t, captured["tools"])
}

func TestLLMAdapter_Generate_ToolCalls(t *testing.T) {
	srv, _ := fakeCompletions(t, http.StatusOK, map[string]interface{}{
		"role": "assistant",
		"tool_calls": []interface{}{
			map[string]interface{}{
				"id":   "call_1",
				"type": "function",
				"function": map[string]interface{}{
					"name":      "add_product",
					"arguments": `{"name":"ortho kit","price":500}`,
				},
			},
			map[string]interface{}{
				"id":   "call_2",
				"type": "function",
				"function": map[string]interface{}{
					"name":      "list_products",
					"arguments": `not json`,
				},
			},
		},
	}, nil)

	a := NewLLMAdapter(srv.URL, "key", "test-model", time.Second)
	resp, err := a.Generate(context.Background(), Request{
		Message: "Add product ortho kit price 500",
		Tools: []Tool{{Type: "function", Function: FunctionDefinition{
			Name:       "add_product",
			Parameters: map[string]interface{}{"type": "object"},
		}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "add_product", resp.ToolCalls[0].Name)
	assert.Equal(t, "ortho kit", resp.ToolCalls[0].Arguments["name"])
	assert.Equal(t, float64(500), resp.ToolCalls[0].Arguments["price"])
	assert.Empty(t, resp.ToolCalls[1].Arguments)
}

func TestLLMAdapter_Generate_RetriesServerErrors(t *testing.T) {
	srv, calls := fakeCompletions(t, http.StatusInternalServerError, nil, nil)

	a := NewLLMAdapter(srv.URL, "", "test-model", time.Second, WithRetryBackoff(time.Millisecond))
	_, err := a.Generate(context.Background(), Request{Message: "hi"})

	var llmErr *apperrors.ErrAgentLLMFailed
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, 3, llmErr.Attempts)
	assert.True(t, llmErr.Retryable)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestLLMAdapter_Generate_NoRetryOnClientError(t *testing.T) {
	srv, calls := fakeCompletions(t, http.StatusBadRequest, nil, nil)

	a := NewLLMAdapter(srv.URL, "", "test-model", time.Second, WithRetryBackoff(time.Millisecond))
	_, err := a.Generate(context.Background(), Request{Message: "hi"})

	var llmErr *apperrors.ErrAgentLLMFailed
	require.ErrorAs(t, err, &llmErr)
	assert.False(t, llmErr.Retryable)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestLLMAdapter_SetModel(t *testing.T) {
	a := NewLLMAdapter("http://localhost:4000", "", "a", 0)
	a.SetModel("")
	assert.Equal(t, "a", a.GetModel())
	a.SetModel("b")
	assert.Equal(t, "b", a.GetModel())
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:4000/v1", normalizeBaseURL("http://localhost:4000/"))
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/openai",
		normalizeBaseURL("https://generativelanguage.googleapis.com/v1beta/openai/"))
}

func TestExtractCodeBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "  MATCH (p:Product) RETURN p  ", want: "MATCH (p:Product) RETURN p"},
		{name: "cypher fence", in: "```cypher\nMATCH (p:Product) RETURN p\n```", want: "MATCH (p:Product) RETURN p"},
		{name: "bare fence", in: "```\n{\"intent\":\"chat\"}\n```", want: `{"intent":"chat"}`},
		{name: "single line fence", in: "```MATCH (n) RETURN n```", want: "MATCH (n) RETURN n"},
		{name: "prose around fence", in: "Here you go:\n```json\n{\"a\":1}\n```\nDone.", want: `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCodeBlock(tt.in))
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"intent":"add_product"}`, ExtractJSONObject(`Sure! {"intent":"add_product"} hope that helps`))
	assert.Equal(t, "no json", ExtractJSONObject("no json"))
}

// TestLLMAdapter_Live requires a reachable OpenAI-compatible endpoint
func TestLLMAdapter_Live(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	baseURL := os.Getenv("LLM_BASE_URL")
	if baseURL == "" {
		t.Skip("LLM_BASE_URL not set")
	}

	a := NewLLMAdapter(baseURL, os.Getenv("LLM_API_KEY"), os.Getenv("LLM_MODEL"), 30*time.Second)
	reply, err := a.Chat(context.Background(), Request{System: "You are terse.", Message: "Say hello in one sentence."})
	require.NoError(t, err)
	assert.NotEmpty(t, reply)
}
