package server

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/llmrc/llmrc/internal/logger"
	"github.com/llmrc/llmrc/internal/metrics"
)

const modelID = "llmrc"

type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type ChatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// route matches the request against the fixed route table. The returned hard
// flag asks the caller to invoke the hard-stop capability after the response
// is written; that path deliberately bypasses the cooperative shutdown flag.
func (s *Server) route(method, path, body string) (status int, respBody string, hard bool) {
	switch {
	case method == "GET" && path == "/health":
		return 200, `{"status":"ok","message":"llmrc API server is running"}`, false

	case method == "GET" && path == "/v1/models":
		return 200, modelListJSON(), false

	case method == "POST" && path == "/v1/chat/completions":
		status, respBody = handleChatCompletion(body)
		return status, respBody, false

	case (method == "POST" || method == "GET") && path == "/stop":
		ack := map[string]any{
			"message":   "Server shutdown initiated",
			"status":    "stopping",
			"timestamp": time.Now().Unix(),
		}
		data, _ := json.Marshal(ack)
		return 200, string(data), true

	case method == "GET" && path == "/shutdown":
		// Informational only; kept for compatibility despite the name.
		// Use /stop for actual termination.
		return 200, `{"message":"Alternative shutdown endpoint triggered","status":"stopping","note":"Use /stop for primary shutdown"}`, false

	default:
		return 404, `{"error":"Not found"}`, false
	}
}

func modelListJSON() string {
	list := ModelList{
		Object: "list",
		Data: []ModelInfo{{
			ID:      modelID,
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: modelID,
		}},
	}
	data, _ := json.Marshal(list)
	return string(data)
}

// handleChatCompletion validates the body and produces a completion whose
// content comes from fixed keyword matching. This is a stand-in policy for a
// real model: the substring checks and their priority order are part of the
// contract, not semantic content generation.
func handleChatCompletion(body string) (int, string) {
	if strings.TrimSpace(body) == "" {
		metrics.RecordChatCompletion("empty_body")
		return 400, `{"error":"Request body is empty"}`
	}

	var req json.RawMessage
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		metrics.RecordChatCompletion("invalid_json")
		return 400, `{"error":"Invalid JSON format"}`
	}

	logger.Log.Debug("processing chat completion request", "bytes", len(body))

	var content string
	switch {
	case strings.Contains(body, "Hello"), strings.Contains(body, "hello"), strings.Contains(body, "hi"):
		content = "Hello! I'm the llmrc engine answering over the HTTP API. How can I help you today?"
	case strings.Contains(body, "config"):
		content = "Current model configuration: temperature=0.7, top_p=0.9, context_size=2048"
	case strings.Contains(body, "error"):
		logger.Log.Error("simulating internal error for testing")
		metrics.RecordChatCompletion("simulated_error")
		return 500, `{"error":"Internal server error","message":"Simulated processing error"}`
	default:
		content = "I received your message. This is a simulated response from the llmrc HTTP API."
	}

	completion := ChatCompletion{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   modelID,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      ChatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
	data, err := json.Marshal(completion)
	if err != nil {
		metrics.RecordChatCompletion("encode_error")
		return 500, `{"error":"Internal server error"}`
	}

	metrics.RecordChatCompletion("ok")
	return 200, string(data)
}
