package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/soliscan/soliscan/internal/llm"
)

func TestNew_SetsDefaults(t *testing.T) {
	client := New("test-key", "gpt-4", "", "")

	if client.baseURL != defaultBaseURL {
		t.Errorf("expected default baseURL %q, got %q", defaultBaseURL, client.baseURL)
	}
	if client.embedModel != defaultEmbedModel {
		t.Errorf("expected default embed model %q, got %q", defaultEmbedModel, client.embedModel)
	}
	if client.Name() != "openai" {
		t.Errorf("expected name 'openai', got %q", client.Name())
	}
}

func TestEmbed_RequestAndResponse(t *testing.T) {
	var capturedBody map[string]any
	var capturedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("expected /embeddings, got %s", r.URL.Path)
		}
		capturedAuth = r.Header.Get("Authorization")
		bodyBytes, _ := io.ReadAll(r.Body)
		json.Unmarshal(bodyBytes, &capturedBody)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2, 0.3}},
				{"embedding": []float32{0.4, 0.5, 0.6}},
			},
		})
	}))
	defer server.Close()

	client := New("test-key", "gpt-4", server.URL, "custom-embed")
	vectors, err := client.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if capturedAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", capturedAuth)
	}
	if capturedBody["model"] != "custom-embed" {
		t.Errorf("expected embed model 'custom-embed', got %v", capturedBody["model"])
	}
	inputs := capturedBody["input"].([]interface{})
	if len(inputs) != 2 || inputs[0] != "first" {
		t.Errorf("unexpected input payload: %v", inputs)
	}

	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[1][2] != 0.6 {
		t.Errorf("unexpected vector content: %v", vectors[1])
	}
}

func TestEmbed_SurfacesStatusInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limit"}`))
	}))
	defer server.Close()

	client := New("key", "gpt-4", server.URL, "")
	_, err := client.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatal("expected error")
	}
	// The retry layer classifies by status text, so it must appear.
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("expected '429' in error, got: %v", err)
	}
}

func TestComplete_RequestAndResponse(t *testing.T) {
	var capturedBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}
		bodyBytes, _ := io.ReadAll(r.Body)
		json.Unmarshal(bodyBytes, &capturedBody)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{
					"message":       map[string]string{"content": "audit finding"},
					"finish_reason": "stop",
				},
			},
			"model": "gpt-4",
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 34},
		})
	}))
	defer server.Close()

	client := New("key", "gpt-4", server.URL, "")
	temp := 0.1
	maxTokens := 2000

	resp, err := client.Complete(context.Background(), llm.UserPrompt("system text", "user text"), &llm.RequestOptions{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := capturedBody["messages"].([]interface{})
	if len(msgs) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(msgs))
	}
	first := msgs[0].(map[string]interface{})
	if first["role"] != "system" || first["content"] != "system text" {
		t.Errorf("expected system message first, got %v", first)
	}
	if capturedBody["temperature"] != 0.1 {
		t.Errorf("expected temperature 0.1, got %v", capturedBody["temperature"])
	}
	if capturedBody["max_tokens"] != float64(2000) {
		t.Errorf("expected max_tokens 2000, got %v", capturedBody["max_tokens"])
	}

	if resp.Content != "audit finding" {
		t.Errorf("expected content 'audit finding', got %q", resp.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 34 {
		t.Errorf("unexpected usage: %d/%d", resp.InputTokens, resp.OutputTokens)
	}
	if resp.StopReason != "stop" {
		t.Errorf("expected stop reason 'stop', got %q", resp.StopReason)
	}
}
