package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/mentora-ai/mentora/internal/storage"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vec, f.err
}

type fakeMaterials struct {
	materials []storage.Material
}

func (f *fakeMaterials) ListReadyMaterials(_ context.Context, _ string) ([]storage.Material, error) {
	return f.materials, nil
}

type fakeLinks struct {
	links []storage.Link
}

func (f *fakeLinks) ListLinks(_ context.Context, _ string) ([]storage.Link, error) {
	return f.links, nil
}

type fakeFallback struct {
	items  []Item
	err    error
	called bool
}

func (f *fakeFallback) Search(_ context.Context, _ string, _ int) ([]Item, error) {
	f.called = true
	return f.items, f.err
}

// unitVec builds a unit-norm vector whose cosine similarity with
// [1, 0, 0, 0] equals sim.
func unitVec(sim float64, axis int) []float32 {
	v := make([]float32, 4)
	v[0] = float32(sim)
	v[axis] = float32(math.Sqrt(1 - sim*sim))
	return v
}

func material(id string, embedding []float32, age time.Duration) storage.Material {
	return storage.Material{
		ID:            id,
		PersonaID:     "p1",
		SourceName:    id + ".pdf",
		ExtractedText: "text of " + id,
		Embedding:     embedding,
		Status:        storage.MaterialReady,
		CreatedAt:     time.Now().Add(-age),
	}
}

func TestResolveContextMaterialsTier(t *testing.T) {
	// Query embeds to [1,0,0,0]; one material at cosine 0.61, one at 0.22.
	// With threshold 0.3 only the first survives.
	embedder := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	materials := &fakeMaterials{materials: []storage.Material{
		material("quadratic", unitVec(0.61, 1), time.Minute),
		material("linear", unitVec(0.22, 2), 2*time.Minute),
	}}
	fallback := &fakeFallback{}
	e := NewEngine(embedder, materials, &fakeLinks{}, fallback)

	res, err := e.ResolveContext(context.Background(), "p1", "How do I solve quadratic equations?")
	if err != nil {
		t.Fatalf("ResolveContext: %v", err)
	}
	if res.Tier != TierMaterials {
		t.Fatalf("tier = %q, want materials", res.Tier)
	}
	if len(res.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(res.Items))
	}
	if res.Items[0].ID != "quadratic" {
		t.Errorf("item = %q, want quadratic", res.Items[0].ID)
	}
	if math.Abs(float64(res.Items[0].Score)-0.61) > 1e-5 {
		t.Errorf("score = %f, want ~0.61", res.Items[0].Score)
	}
	if fallback.called {
		t.Error("fallback must not be consulted when tier 1 matches")
	}
}

func TestResolveContextThresholdNeverViolated(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	var ms []storage.Material
	for i, sim := range []float64{0.9, 0.55, 0.45, 0.31, 0.29, 0.1} {
		ms = append(ms, material(fmt.Sprintf("m%d", i), unitVec(sim, 1), time.Duration(i)*time.Minute))
	}
	e := NewEngine(embedder, &fakeMaterials{materials: ms}, &fakeLinks{}, nil)

	res, err := e.ResolveContextWith(context.Background(), "p1", "q", Options{MatchThreshold: 0.5})
	if err != nil {
		t.Fatalf("ResolveContextWith: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("got %d items, want 2 at threshold 0.5", len(res.Items))
	}
	for _, item := range res.Items {
		if item.Score < 0.5 {
			t.Errorf("item %s score %f below threshold", item.ID, item.Score)
		}
	}
}

func TestResolveContextMatchCountClamp(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	var ms []storage.Material
	for i := 0; i < 8; i++ {
		ms = append(ms, material(fmt.Sprintf("m%d", i), unitVec(0.8-float64(i)*0.05, 1), time.Duration(i)*time.Minute))
	}
	e := NewEngine(embedder, &fakeMaterials{materials: ms}, &fakeLinks{}, nil)

	res, err := e.ResolveContextWith(context.Background(), "p1", "q", Options{MatchCount: 3})
	if err != nil {
		t.Fatalf("ResolveContextWith: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(res.Items))
	}
	// Ordered by descending score.
	for i := 1; i < len(res.Items); i++ {
		if res.Items[i].Score > res.Items[i-1].Score {
			t.Errorf("items not sorted: %f after %f", res.Items[i].Score, res.Items[i-1].Score)
		}
	}

	// Count above candidate count returns everything available.
	res, err = e.ResolveContextWith(context.Background(), "p1", "q", Options{MatchCount: 100})
	if err != nil {
		t.Fatalf("ResolveContextWith: %v", err)
	}
	if len(res.Items) != 8 {
		t.Errorf("got %d items, want all 8", len(res.Items))
	}
}

func TestResolveContextTieBreakNewestFirst(t *testing.T) {
	// Identical embeddings produce identical scores; the newer material
	// must come first.
	embedder := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	same := unitVec(0.7, 1)
	materials := &fakeMaterials{materials: []storage.Material{
		material("newer", same, time.Minute),
		material("older", same, time.Hour),
	}}
	e := NewEngine(embedder, materials, &fakeLinks{}, nil)

	res, err := e.ResolveContext(context.Background(), "p1", "q")
	if err != nil {
		t.Fatalf("ResolveContext: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(res.Items))
	}
	if res.Items[0].ID != "newer" {
		t.Errorf("first item = %q, want newer", res.Items[0].ID)
	}
}

func TestResolveContextLinksTier(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	links := &fakeLinks{links: []storage.Link{
		{ID: "l1", PersonaID: "p1", URL: "https://example.com/a", Title: "Khan Academy algebra"},
		{ID: "l2", PersonaID: "p1", URL: "https://example.com/b", Title: "Paul's notes", Description: "calculus I"},
	}}
	fallback := &fakeFallback{}
	e := NewEngine(embedder, &fakeMaterials{}, links, fallback)

	res, err := e.ResolveContext(context.Background(), "p1", "q")
	if err != nil {
		t.Fatalf("ResolveContext: %v", err)
	}
	if res.Tier != TierLinks {
		t.Fatalf("tier = %q, want links", res.Tier)
	}
	if len(res.Items) != 2 {
		t.Fatalf("got %d links, want 2", len(res.Items))
	}
	if res.Items[1].Content != "Paul's notes — calculus I" {
		t.Errorf("link content = %q", res.Items[1].Content)
	}
	if fallback.called {
		t.Error("fallback must not be consulted when links exist")
	}
}

func TestResolveContextBelowThresholdFallsToLinks(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	materials := &fakeMaterials{materials: []storage.Material{
		material("irrelevant", unitVec(0.1, 1), time.Minute),
	}}
	links := &fakeLinks{links: []storage.Link{
		{ID: "l1", PersonaID: "p1", URL: "https://example.com", Title: "Reference"},
	}}
	e := NewEngine(embedder, materials, links, nil)

	res, err := e.ResolveContext(context.Background(), "p1", "q")
	if err != nil {
		t.Fatalf("ResolveContext: %v", err)
	}
	if res.Tier != TierLinks {
		t.Errorf("tier = %q, want links when all materials miss the threshold", res.Tier)
	}
}

func TestResolveContextFallbackTier(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	fallback := &fakeFallback{items: []Item{{ID: "k1", Content: "general algebra", Score: 0.5}}}
	e := NewEngine(embedder, &fakeMaterials{}, &fakeLinks{}, fallback)

	res, err := e.ResolveContext(context.Background(), "p1", "q")
	if err != nil {
		t.Fatalf("ResolveContext: %v", err)
	}
	if res.Tier != TierFallback {
		t.Fatalf("tier = %q, want fallback", res.Tier)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "k1" {
		t.Errorf("items = %+v", res.Items)
	}
}

func TestResolveContextNone(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	e := NewEngine(embedder, &fakeMaterials{}, &fakeLinks{}, &fakeFallback{})

	res, err := e.ResolveContext(context.Background(), "p1", "q")
	if err != nil {
		t.Fatalf("ResolveContext: %v", err)
	}
	if res.Tier != TierNone {
		t.Errorf("tier = %q, want none", res.Tier)
	}
	if len(res.Items) != 0 {
		t.Errorf("items must be empty for tier none, got %d", len(res.Items))
	}
}

func TestResolveContextEmbedFailureAborts(t *testing.T) {
	embedErr := errors.New("embedding generation failed: timeout")
	embedder := &fakeEmbedder{err: embedErr}
	links := &fakeLinks{links: []storage.Link{{ID: "l1", Title: "Reference", URL: "https://example.com"}}}
	fallback := &fakeFallback{items: []Item{{ID: "k1"}}}
	e := NewEngine(embedder, &fakeMaterials{}, links, fallback)

	_, err := e.ResolveContext(context.Background(), "p1", "q")
	if !errors.Is(err, embedErr) {
		t.Fatalf("err = %v, want wrapped embed error", err)
	}
	if fallback.called {
		t.Error("no tier may be consulted when embedding fails")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	if got := cosineSimilarity(a, a); math.Abs(float64(got)-1) > 1e-6 {
		t.Errorf("cosine(a, a) = %f, want 1", got)
	}
	if got := cosineSimilarity(a, []float32{0, 1, 0}); got != 0 {
		t.Errorf("orthogonal cosine = %f, want 0", got)
	}
	if got := cosineSimilarity(a, []float32{0, 0, 0}); got != 0 {
		t.Errorf("zero-norm cosine = %f, want 0", got)
	}
	if got := cosineSimilarity(a, []float32{1, 0}); got != 0 {
		t.Errorf("mismatched-length cosine = %f, want 0", got)
	}
	if got := cosineSimilarity([]float32{-1, 0, 0}, a); math.Abs(float64(got)+1) > 1e-6 {
		t.Errorf("opposite cosine = %f, want -1", got)
	}
}
