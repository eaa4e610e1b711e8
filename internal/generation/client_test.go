package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mentora-ai/mentora/internal/retrieval"
	"github.com/mentora-ai/mentora/internal/storage"
)

func chatServer(t *testing.T, reply string, capture *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decoding request: %v", err)
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReply(t *testing.T) {
	var captured chatRequest
	srv := chatServer(t, "A quadratic equation has the form ax²+bx+c=0.", &captured)
	c := NewClientWithBaseURL("test-key", "test-model", srv.URL)

	grounding := retrieval.Result{
		Tier: retrieval.TierMaterials,
		Items: []retrieval.Item{
			{ID: "m1", Content: "Quadratic equations: ax²+bx+c=0", Source: "algebra.pdf", Score: 0.61},
		},
	}
	transcript := []storage.Turn{
		{Role: "learner", Content: "How do I solve quadratic equations?", Seq: 1},
	}

	reply, err := c.Reply(context.Background(), grounding, transcript)
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if !strings.Contains(reply, "quadratic") {
		t.Errorf("reply = %q", reply)
	}

	if captured.Model != "test-model" {
		t.Errorf("model = %q", captured.Model)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("got %d messages, want system + user", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || !strings.Contains(captured.Messages[0].Content, "algebra.pdf") {
		t.Errorf("system message = %+v", captured.Messages[0])
	}
	if captured.Messages[1].Role != "user" {
		t.Errorf("transcript role = %q, want user", captured.Messages[1].Role)
	}
}

func TestReplyMapsPersonaTurnsToAssistant(t *testing.T) {
	var captured chatRequest
	srv := chatServer(t, "ok", &captured)
	c := NewClientWithBaseURL("k", "m", srv.URL)

	transcript := []storage.Turn{
		{Role: "learner", Content: "hi", Seq: 1},
		{Role: "persona", Content: "hello", Seq: 2},
		{Role: "learner", Content: "help me factor x²-4", Seq: 3},
	}
	if _, err := c.Reply(context.Background(), retrieval.Result{Tier: retrieval.TierNone}, transcript); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	roles := []string{"system", "user", "assistant", "user"}
	if len(captured.Messages) != len(roles) {
		t.Fatalf("got %d messages, want %d", len(captured.Messages), len(roles))
	}
	for i, want := range roles {
		if captured.Messages[i].Role != want {
			t.Errorf("message %d role = %q, want %q", i, captured.Messages[i].Role, want)
		}
	}
}

func TestReplyRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "fine"}}},
		})
	}))
	t.Cleanup(srv.Close)
	c := NewClientWithBaseURL("k", "m", srv.URL)

	reply, err := c.Reply(context.Background(), retrieval.Result{Tier: retrieval.TierNone}, nil)
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply != "fine" {
		t.Errorf("reply = %q", reply)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls.Load())
	}
}

func TestReplyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	c := NewClientWithBaseURL("k", "m", srv.URL)

	if _, err := c.Reply(context.Background(), retrieval.Result{Tier: retrieval.TierNone}, nil); err == nil {
		t.Error("expected error on 500")
	}
}
