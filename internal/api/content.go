package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/mentora-ai/mentora/internal/ingest"
	"github.com/mentora-ai/mentora/internal/retrieval"
	"github.com/mentora-ai/mentora/internal/storage"
)

const maxTitleFetchSize = 1 << 20 // 1MB

type materialView struct {
	ID           string `json:"id"`
	PersonaID    string `json:"persona_id"`
	SourceName   string `json:"source_name"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func viewMaterial(m storage.Material) materialView {
	return materialView{
		ID:           m.ID,
		PersonaID:    m.PersonaID,
		SourceName:   m.SourceName,
		Status:       string(m.Status),
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// handleUploadMaterial accepts an upload, records it as processing and
// queues extraction. Text may arrive plain or base64; PDFs must be base64.
func handleUploadMaterial(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		personaID := chi.URLParam(r, "personaID")

		r.Body = http.MaxBytesReader(w, r.Body, maxMaterialBodySize)
		defer r.Body.Close()

		var req struct {
			SourceName string `json:"source_name"`
			Kind       string `json:"kind"`
			Content    string `json:"content"`
			ContentB64 string `json:"content_b64"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.SourceName == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "source_name is required")
			return
		}
		if req.Kind == "" {
			req.Kind = ingest.KindText
		}
		if req.Kind != ingest.KindText && req.Kind != ingest.KindPDF {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unsupported kind %q", req.Kind)
			return
		}

		var contentB64 string
		switch {
		case req.ContentB64 != "":
			if _, err := base64.StdEncoding.DecodeString(req.ContentB64); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			contentB64 = req.ContentB64
		case req.Content != "":
			if req.Kind == ingest.KindPDF {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "pdf uploads must use content_b64")
				return
			}
			contentB64 = base64.StdEncoding.EncodeToString([]byte(req.Content))
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "one of content or content_b64 is required")
			return
		}

		m := storage.Material{
			ID:         uuid.New().String(),
			PersonaID:  personaID,
			SourceName: req.SourceName,
			Status:     storage.MaterialProcessing,
			CreatedAt:  time.Now().UTC(),
		}
		if err := deps.Store.CreateMaterial(m); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save material: %v", err)
			return
		}

		payload, err := json.Marshal(ingest.Payload{
			MaterialID: m.ID,
			Kind:       req.Kind,
			ContentB64: contentB64,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create job payload: %v", err)
			return
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        ingest.JobTypeMaterialExtract,
			PayloadJSON: string(payload),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     m.ID,
			"status": string(storage.MaterialProcessing),
		})
	}
}

func handleListMaterials(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		personaID := chi.URLParam(r, "personaID")

		materials, err := deps.Store.ListMaterials(personaID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list materials: %v", err)
			return
		}

		views := make([]materialView, len(materials))
		for i, m := range materials {
			views[i] = viewMaterial(m)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetMaterial(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		m, err := deps.Store.GetMaterial(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "material not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get material: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, viewMaterial(m))
	}
}

func handleDeleteMaterial(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteMaterial(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "material not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete material: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

type linkView struct {
	ID          string `json:"id"`
	PersonaID   string `json:"persona_id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func viewLink(l storage.Link) linkView {
	return linkView{
		ID:          l.ID,
		PersonaID:   l.PersonaID,
		URL:         l.URL,
		Title:       l.Title,
		Description: l.Description,
		CreatedAt:   l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func handleAddLink(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		personaID := chi.URLParam(r, "personaID")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required")
			return
		}
		if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url must be http or https")
			return
		}

		if req.Title == "" {
			title, err := fetchPageTitle(r.Context(), deps.HTTPClient, req.URL)
			if err != nil || title == "" {
				// Best effort: fall through to the URL itself.
				title = req.URL
			}
			req.Title = title
		}

		l := storage.Link{
			ID:          uuid.New().String(),
			PersonaID:   personaID,
			URL:         req.URL,
			Title:       req.Title,
			Description: req.Description,
			CreatedAt:   time.Now().UTC(),
		}
		err := deps.Store.CreateLink(l)
		if errors.Is(err, storage.ErrDuplicateLink) {
			httpError(w, http.StatusConflict, "conflict", "link already exists for this persona")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save link: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, viewLink(l))
	}
}

func handleListLinks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		personaID := chi.URLParam(r, "personaID")

		links, err := deps.Store.ListLinks(r.Context(), personaID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list links: %v", err)
			return
		}

		views := make([]linkView, len(links))
		for i, l := range links {
			views[i] = viewLink(l)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleDeleteLink(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteLink(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "link not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete link: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// fetchPageTitle downloads up to maxTitleFetchSize bytes of the page and
// returns the text of its <title> element.
func fetchPageTitle(ctx context.Context, client *http.Client, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.New("page returned " + strconv.Itoa(resp.StatusCode))
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxTitleFetchSize))
	if err != nil {
		return "", err
	}
	return findTitle(doc), nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		return strings.TrimSpace(sb.String())
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}

// handleResolve answers an ad-hoc grounding query outside any session.
func handleResolve(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			PersonaID      string  `json:"persona_id"`
			Query          string  `json:"query"`
			MatchThreshold float32 `json:"match_threshold"`
			MatchCount     int     `json:"match_count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.PersonaID == "" || req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "persona_id and query are required")
			return
		}

		result, err := deps.Resolver.ResolveContextWith(r.Context(), req.PersonaID, req.Query, retrieval.Options{
			MatchThreshold: req.MatchThreshold,
			MatchCount:     req.MatchCount,
		})
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to resolve context: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, viewResult(result))
	}
}

type resultItemView struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float32 `json:"score"`
}

type resultView struct {
	Tier  string           `json:"tier"`
	Items []resultItemView `json:"items"`
}

func viewResult(res retrieval.Result) resultView {
	items := make([]resultItemView, len(res.Items))
	for i, it := range res.Items {
		items[i] = resultItemView{ID: it.ID, Content: it.Content, Source: it.Source, Score: it.Score}
	}
	return resultView{Tier: string(res.Tier), Items: items}
}

// resolveOptions reads per-request retrieval overrides from query params.
func resolveOptions(r *http.Request) retrieval.Options {
	var opts retrieval.Options
	if s := r.URL.Query().Get("match_threshold"); s != "" {
		if f, err := strconv.ParseFloat(s, 32); err == nil && f > 0 {
			opts.MatchThreshold = float32(f)
		}
	}
	opts.MatchCount = parseIntParam(r, "match_count", 0, 50)
	return opts
}
