package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaGenerateSendsContract(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "hello", "done": true})
	}))
	defer srv.Close()

	b := NewOllamaBackend(srv.URL+"/", "llama3.1:latest")
	out, err := b.Generate(context.Background(), Request{Prompt: "p", Temperature: 0.3, MaxTokens: 1500})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "hello" {
		t.Fatalf("out = %q, want hello", out)
	}
	if got.Model != "llama3.1:latest" || got.Prompt != "p" || got.Stream {
		t.Fatalf("request = %+v", got)
	}
	if got.Options.Temperature != 0.3 || got.Options.NumPredict != 1500 {
		t.Fatalf("options = %+v", got.Options)
	}
}

func TestOllamaGenerateStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaBackend(srv.URL, "m").Generate(context.Background(), Request{Prompt: "p"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v (%T), want *StatusError", err, err)
	}
	if se.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", se.Code)
	}
}

func TestOllamaGenerateTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := NewOllamaBackend(url, "m").Generate(context.Background(), Request{Prompt: "p"}); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestOllamaHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if !NewOllamaBackend(srv.URL, "m").Healthy(context.Background()) {
		t.Fatal("expected healthy")
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	if NewOllamaBackend(down.URL, "m").Healthy(context.Background()) {
		t.Fatal("expected unhealthy")
	}
}
