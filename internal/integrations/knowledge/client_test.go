package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spec-kit/helpdesk-pipeline/internal/config"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer kb-key" {
			t.Errorf("missing bearer token")
		}
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Query != "export grades" || req.ResponseMode != "blocking" {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"answer":" Use the Export button. ","metadata":{"retriever_resources":[{"content":"Grades > Export"},{"content":" "}]}}`))
	}))
	defer srv.Close()

	c := NewClient(config.KnowledgeConfig{BaseURL: srv.URL, APIKey: "kb-key", User: "bot"}, srv.Client())
	res, err := c.Search(context.Background(), "export grades")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Answer != "Use the Export button." || res.Matches != 2 || res.Context != "Grades > Export" || res.Method != MethodChat {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Grounding() != res.Answer {
		t.Fatalf("grounding should prefer the answer")
	}
}

func TestSearchDisabledWithoutKey(t *testing.T) {
	res, err := NewClient(config.KnowledgeConfig{}, nil).Search(context.Background(), "anything")
	if err != nil || res.Method != MethodDisabled || res.Grounding() != "" {
		t.Fatalf("unexpected result %+v err=%v", res, err)
	}
}

func TestSearchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(config.KnowledgeConfig{BaseURL: srv.URL, APIKey: "k"}, srv.Client()).Search(context.Background(), "q")
	if err == nil {
		t.Fatal("expected error")
	}
}
