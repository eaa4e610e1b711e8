// Package api exposes the tutoring daemon over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mentora-ai/mentora/internal/retrieval"
	"github.com/mentora-ai/mentora/internal/review"
	"github.com/mentora-ai/mentora/internal/session"
	"github.com/mentora-ai/mentora/internal/storage"
)

const maxRequestBodySize = 1 << 20   // 1MB
const maxMaterialBodySize = 10 << 20 // 10MB

// ContextResolver abstracts the retrieval engine for the API layer.
type ContextResolver interface {
	ResolveContextWith(ctx context.Context, personaID, queryText string, opts retrieval.Options) (retrieval.Result, error)
}

// ReplyGenerator produces the persona's reply from grounding context and
// the conversation so far.
type ReplyGenerator interface {
	Reply(ctx context.Context, grounding retrieval.Result, transcript []storage.Turn) (string, error)
}

type Deps struct {
	Store      *storage.Store
	Sessions   *session.Manager
	Reviews    *review.Validator
	Resolver   ContextResolver
	Generator  ReplyGenerator // optional; if nil, message turns are stored without a generated reply
	Token      string
	HTTPClient *http.Client // used for link title fetches
	Logger     *slog.Logger
}

// NewHandler returns the daemon's HTTP API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/v1/sessions", handleStartSession(deps))
		r.Get("/v1/sessions", handleListSessions(deps))
		r.Get("/v1/sessions/{id}", handleGetSession(deps))
		r.Post("/v1/sessions/{id}/messages", handleSessionMessage(deps))
		r.Get("/v1/sessions/{id}/transcript", handleTranscript(deps))
		r.Post("/v1/sessions/{id}/end", handleEndSession(deps))
		r.Post("/v1/sessions/{id}/escalate", handleEscalateSession(deps))
		r.Get("/v1/sessions/{id}/review", handleGetReview(deps))

		r.Post("/v1/reviews", handleSubmitReview(deps))

		r.Post("/v1/personas/{personaID}/materials", handleUploadMaterial(deps))
		r.Get("/v1/personas/{personaID}/materials", handleListMaterials(deps))
		r.Get("/v1/materials/{id}", handleGetMaterial(deps))
		r.Delete("/v1/materials/{id}", handleDeleteMaterial(deps))

		r.Post("/v1/personas/{personaID}/links", handleAddLink(deps))
		r.Get("/v1/personas/{personaID}/links", handleListLinks(deps))
		r.Delete("/v1/links/{id}", handleDeleteLink(deps))

		r.Post("/v1/resolve", handleResolve(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
