// Package ingest processes uploaded materials in the background: text
// extraction followed by embedding. A material leaves the "processing"
// status exactly once, to "ready" with an embedding or to "failed" with
// an error message.
package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mentora-ai/mentora/internal/embedding"
	"github.com/mentora-ai/mentora/internal/storage"
)

// JobTypeMaterialExtract is the queue type for material processing jobs.
const JobTypeMaterialExtract = "material_extract"

// JobStore abstracts the job queue and material mutations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetMaterial(id string) (storage.Material, error)
	MarkMaterialReady(id, text string, embedding []float32) error
	MarkMaterialFailed(id, errMsg string) error
}

// ContentEmbedder generates embeddings for extracted text.
type ContentEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Payload is the job payload for material extraction. The raw upload
// travels in the payload so the materials table only ever holds the
// extracted text.
type Payload struct {
	MaterialID string `json:"material_id"`
	Kind       string `json:"kind"`
	ContentB64 string `json:"content_b64"`
}

// Worker processes material_extract jobs from the job queue.
type Worker struct {
	store    JobStore
	embedder ContentEmbedder
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ContentEmbedder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single material_extract job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeMaterialExtract})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("material job failed", "job_id", job.ID, "error", err)

		// Out of retries: record the failure on the material so it does
		// not stay in "processing" forever.
		if job.Attempts >= job.MaxAttempts {
			var payload Payload
			if jsonErr := json.Unmarshal([]byte(job.PayloadJSON), &payload); jsonErr == nil && payload.MaterialID != "" {
				if markErr := w.store.MarkMaterialFailed(payload.MaterialID, err.Error()); markErr != nil && markErr != storage.ErrNotFound {
					w.logger.Error("failed to mark material as failed", "material_id", payload.MaterialID, "error", markErr)
				}
			}
		}
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	material, err := w.store.GetMaterial(payload.MaterialID)
	if err != nil {
		return fmt.Errorf("loading material %s: %w", payload.MaterialID, err)
	}
	if material.Status != storage.MaterialProcessing {
		// Already processed, nothing to do. Happens when a job retry
		// races a previous attempt.
		return nil
	}

	data, err := base64.StdEncoding.DecodeString(payload.ContentB64)
	if err != nil {
		return fmt.Errorf("decoding payload content: %w", err)
	}

	text, err := ExtractText(payload.Kind, data)
	if err != nil {
		// Extraction failures are permanent: record them on the material
		// and complete the job rather than retrying.
		if markErr := w.store.MarkMaterialFailed(payload.MaterialID, err.Error()); markErr != nil {
			return fmt.Errorf("marking material failed: %w", markErr)
		}
		w.logger.Info("material extraction failed", "material_id", payload.MaterialID, "error", err)
		return nil
	}

	vec, err := w.embedText(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding material %s: %w", payload.MaterialID, err)
	}

	if err := w.store.MarkMaterialReady(payload.MaterialID, text, vec); err != nil {
		return fmt.Errorf("marking material ready: %w", err)
	}
	w.logger.Info("material processed", "material_id", payload.MaterialID, "text_bytes", len(text))
	return nil
}

// embedText embeds the full text when it fits in one request, otherwise
// embeds fixed-size chunks concurrently and averages the vectors into a
// single material embedding.
func (w *Worker) embedText(ctx context.Context, text string) ([]float32, error) {
	if len(text) <= embedding.MaxInputBytes {
		return w.embedder.Embed(ctx, text)
	}

	chunks := splitChunks(text, embedding.MaxInputBytes)
	vecs, err := w.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, err
	}
	return meanVector(vecs), nil
}

// splitChunks splits text into pieces of at most size bytes, breaking on
// rune boundaries.
func splitChunks(text string, size int) []string {
	var chunks []string
	runes := []rune(text)
	var sb []rune
	bytes := 0
	for _, r := range runes {
		rl := len(string(r))
		if bytes+rl > size && len(sb) > 0 {
			chunks = append(chunks, string(sb))
			sb = sb[:0]
			bytes = 0
		}
		sb = append(sb, r)
		bytes += rl
	}
	if len(sb) > 0 {
		chunks = append(chunks, string(sb))
	}
	return chunks
}

// meanVector averages a set of equal-length vectors component-wise.
func meanVector(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	out := make([]float32, len(vecs[0]))
	for _, v := range vecs {
		for i := range v {
			out[i] += v[i]
		}
	}
	for i := range out {
		out[i] /= float32(len(vecs))
	}
	return out
}
