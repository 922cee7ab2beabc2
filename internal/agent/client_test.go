package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage-agent/internal/extractor"
	"triage-agent/internal/triage"
)

type chatRequest struct {
	Model          string `json:"model"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionServer(t *testing.T, status int, content string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"data":[]}`)
			return
		}
		require.Equal(t, "/chat/completions", r.URL.Path)
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}}},
		})
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_UnderstandSymptoms(t *testing.T) {
	var seen chatRequest
	srv := completionServer(t, http.StatusOK, `{"chief_complaint":"cough","associated_symptoms":["fever"]}`, &seen)
	c := NewClient(srv.URL, "sk-test", "test-model")

	history := []triage.Turn{{UserMessage: "I feel unwell", SystemResponse: "Tell me more"}}
	raw, err := c.UnderstandSymptoms(context.Background(), "I have a cough", history, triage.SymptomFrame{})
	require.NoError(t, err)

	frame, err := extractor.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "cough", *frame.ChiefComplaint)

	assert.Equal(t, "test-model", seen.Model)
	require.NotNil(t, seen.ResponseFormat)
	assert.Equal(t, "json_object", seen.ResponseFormat.Type)
	// two system prompts, one prior exchange, then the new message
	require.Len(t, seen.Messages, 5)
	assert.Equal(t, "I have a cough", seen.Messages[4].Content)
}

func TestClient_Rephrase(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "  You should rest.  ", nil)
	c := NewClient(srv.URL, "sk-test", "test-model")

	out, err := c.Rephrase(context.Background(), "template")
	require.NoError(t, err)
	assert.Equal(t, "You should rest.", out)
}

func TestClient_ErrorReasons(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := completionServer(t, http.StatusServiceUnavailable, "", nil)
		_, err := NewClient(srv.URL, "k", "m").Rephrase(context.Background(), "x")
		assert.Equal(t, triage.ReasonServiceUnavailable, triage.ReasonFor(err))
	})

	t.Run("empty content", func(t *testing.T) {
		srv := completionServer(t, http.StatusOK, "   ", nil)
		_, err := NewClient(srv.URL, "k", "m").Rephrase(context.Background(), "x")
		assert.Equal(t, triage.ReasonMalformedResponse, triage.ReasonFor(err))
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := NewClient(srv.URL, "k", "m").Rephrase(ctx, "x")
		assert.Equal(t, triage.ReasonTimeout, triage.ReasonFor(err))
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := NewClient("http://127.0.0.1:1", "k", "m").Rephrase(context.Background(), "x")
		assert.Equal(t, triage.ReasonServiceUnavailable, triage.ReasonFor(err))
	})
}

func TestProber(t *testing.T) {
	ok := completionServer(t, http.StatusOK, "", nil)
	assert.NoError(t, NewProber(ok.URL, "k", time.Second).Check(context.Background()))

	down := completionServer(t, http.StatusUnauthorized, "", nil)
	assert.Error(t, NewProber(down.URL, "k", time.Second).Check(context.Background()))
}
