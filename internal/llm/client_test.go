package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-rag/internal/config"
)

func TestGenerate(t *testing.T) {
	var received generateRequest
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "hello back"})
	}))
	defer backend.Close()

	client := NewClient(&config.LLMConfig{BaseURL: backend.URL, Model: "default-model"})

	out, err := client.Generate(context.Background(), "hello", "custom-model")
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)

	assert.Equal(t, "custom-model", received.Model)
	assert.Equal(t, "hello", received.Prompt)
	assert.False(t, received.Stream)
	assert.InDelta(t, 0.85, received.Options.Temperature, 1e-9)
	assert.InDelta(t, 0.75, received.Options.TopP, 1e-9)
	assert.InDelta(t, 1.05, received.Options.RepeatPenalty, 1e-9)
	assert.InDelta(t, 0.015, received.Options.PresencePenalty, 1e-9)
	assert.InDelta(t, 0.015, received.Options.FrequencyPenalty, 1e-9)
}

func TestGenerate_DefaultModel(t *testing.T) {
	var received generateRequest
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "ok"})
	}))
	defer backend.Close()

	client := NewClient(&config.LLMConfig{BaseURL: backend.URL, Model: "default-model"})
	_, err := client.Generate(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "default-model", received.Model)
}

func TestGenerate_NonSuccessStatus(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer backend.Close()

	client := NewClient(&config.LLMConfig{BaseURL: backend.URL, Model: "m"})
	_, err := client.Generate(context.Background(), "hi", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "model not found")
}

func TestGenerate_MalformedBody(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer backend.Close()

	client := NewClient(&config.LLMConfig{BaseURL: backend.URL, Model: "m"})
	_, err := client.Generate(context.Background(), "hi", "")
	assert.Error(t, err)
}

func TestGenerate_BackendDown(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close()

	client := NewClient(&config.LLMConfig{BaseURL: backend.URL, Model: "m"})
	_, err := client.Generate(context.Background(), "hi", "")
	assert.Error(t, err)
}
