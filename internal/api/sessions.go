package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mentora-ai/mentora/internal/review"
	"github.com/mentora-ai/mentora/internal/session"
	"github.com/mentora-ai/mentora/internal/storage"
)

type sessionView struct {
	ID              string `json:"id"`
	PersonaID       string `json:"persona_id"`
	LearnerID       string `json:"learner_id"`
	Status          string `json:"status"`
	StartedAt       string `json:"started_at"`
	EndedAt         string `json:"ended_at,omitempty"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
	CostMinor       *int   `json:"cost_minor,omitempty"`
	Escalated       bool   `json:"escalated"`
}

func viewSession(s storage.Session) sessionView {
	v := sessionView{
		ID:              s.ID,
		PersonaID:       s.PersonaID,
		LearnerID:       s.LearnerID,
		Status:          string(s.Status),
		StartedAt:       s.StartedAt.UTC().Format(time.RFC3339),
		DurationMinutes: s.DurationMinutes,
		CostMinor:       s.CostMinor,
		Escalated:       s.Escalated,
	}
	if s.EndedAt != nil {
		v.EndedAt = s.EndedAt.UTC().Format(time.RFC3339)
	}
	return v
}

type turnView struct {
	Seq       int    `json:"seq"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func viewTurns(turns []storage.Turn) []turnView {
	views := make([]turnView, len(turns))
	for i, t := range turns {
		views[i] = turnView{
			Seq:       t.Seq,
			Role:      t.Role,
			Content:   t.Content,
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return views
}

func handleStartSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			PersonaID string `json:"persona_id"`
			LearnerID string `json:"learner_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.PersonaID == "" || req.LearnerID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "persona_id and learner_id are required")
			return
		}

		sess, err := deps.Sessions.Start(req.PersonaID, req.LearnerID)
		if errors.Is(err, storage.ErrActiveSessionExists) {
			httpError(w, http.StatusConflict, "conflict", "an active session already exists for this persona and learner")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to start session: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, viewSession(sess))
	}
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		sessions, err := deps.Store.ListSessions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sessions: %v", err)
			return
		}

		views := make([]sessionView, len(sessions))
		for i, s := range sessions {
			views[i] = viewSession(s)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// handleGetSession reads a session, applying the timeout rule first so
// that an expired session is reported in its final state.
func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		sess, err := deps.Sessions.CheckTimeout(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, viewSession(sess))
	}
}

func handleSessionMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		sess, err := deps.Sessions.CheckTimeout(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to check session: %v", err)
			return
		}
		if sess.Status.Terminal() {
			httpError(w, http.StatusConflict, "conflict", "session is %s", sess.Status)
			return
		}

		if _, err := deps.Sessions.AppendTurn(id, session.RoleLearner, req.Content); err != nil {
			switch {
			case errors.Is(err, storage.ErrSessionNotActive):
				httpError(w, http.StatusConflict, "conflict", "session is not active")
			case errors.Is(err, storage.ErrNotFound):
				httpError(w, http.StatusNotFound, "not_found", "session not found")
			default:
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			}
			return
		}

		grounding, err := deps.Resolver.ResolveContextWith(r.Context(), sess.PersonaID, req.Content, resolveOptions(r))
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to resolve context: %v", err)
			return
		}

		resp := map[string]any{
			"session_id": id,
			"tier":       string(grounding.Tier),
		}

		if deps.Generator != nil {
			transcript, err := deps.Sessions.Transcript(id)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to load transcript: %v", err)
				return
			}
			reply, err := deps.Generator.Reply(r.Context(), grounding, transcript)
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "failed to generate reply: %v", err)
				return
			}
			turn, err := deps.Sessions.AppendTurn(id, session.RolePersona, reply)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to store reply: %v", err)
				return
			}
			resp["reply"] = reply
			resp["seq"] = turn.Seq
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleTranscript(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := deps.Sessions.Get(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return
		}

		turns, err := deps.Sessions.Transcript(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load transcript: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, viewTurns(turns))
	}
}

func handleEndSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Reason string `json:"reason"`
		}
		// Body is optional; an empty body means a normal client end.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		reason := session.ReasonClientEnd
		switch req.Reason {
		case "", string(session.ReasonClientEnd):
		case string(session.ReasonCancel):
			reason = session.ReasonCancel
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown end reason %q", req.Reason)
			return
		}

		sess, err := deps.Sessions.End(id, reason)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to end session: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, viewSession(sess))
	}
}

func handleEscalateSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		sess, err := deps.Sessions.Escalate(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to escalate session: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, viewSession(sess))
	}
}

type reviewView struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	ReviewerID string `json:"reviewer_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func viewReview(rv storage.Review) reviewView {
	return reviewView{
		ID:         rv.ID,
		SessionID:  rv.SessionID,
		ReviewerID: rv.ReviewerID,
		Rating:     rv.Rating,
		Comment:    rv.Comment,
		CreatedAt:  rv.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func handleSubmitReview(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			SessionID  string `json:"session_id"`
			ReviewerID string `json:"reviewer_id"`
			Rating     int    `json:"rating"`
			Comment    string `json:"comment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SessionID == "" || req.ReviewerID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "session_id and reviewer_id are required")
			return
		}

		rv, err := deps.Reviews.SubmitReview(req.SessionID, req.ReviewerID, req.Rating, req.Comment)
		switch {
		case errors.Is(err, review.ErrInvalidRating):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "rating must be between 1 and 5")
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "session not found")
		case errors.Is(err, review.ErrSessionNotFinished):
			httpError(w, http.StatusConflict, "conflict", "session has not finished")
		case errors.Is(err, storage.ErrDuplicateReview):
			httpError(w, http.StatusConflict, "conflict", "session already has a review")
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to submit review: %v", err)
		default:
			writeJSON(w, http.StatusCreated, viewReview(rv))
		}
	}
}

func handleGetReview(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rv, err := deps.Store.GetReviewBySession(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no review for this session")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get review: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, viewReview(rv))
	}
}
