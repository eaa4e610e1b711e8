// Package retrieval resolves grounding context for a learner's question by
// searching progressively less specific sources: the persona's own uploaded
// materials, the persona's reference links, and finally a generic knowledge
// service. The first tier that yields material wins.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/mentora-ai/mentora/internal/storage"
)

// Tier identifies which source satisfied a query.
type Tier string

const (
	TierMaterials Tier = "materials"
	TierLinks     Tier = "links"
	TierFallback  Tier = "fallback"
	TierNone      Tier = "none"
)

const (
	// DefaultMatchThreshold is the minimum cosine similarity for a
	// material to count as relevant.
	DefaultMatchThreshold = 0.3
	// DefaultMatchCount caps how many items a tier returns.
	DefaultMatchCount = 5
)

// Item is one piece of grounding content with its relevance score. Links
// and fallback chunks that carry no score leave Score at 0.
type Item struct {
	ID      string
	Content string
	Source  string
	Score   float32
}

// Result is the engine's answer to one query. Items is empty only when
// Tier is TierNone.
type Result struct {
	Tier  Tier
	Items []Item
}

// Options carries per-call overrides. Zero values fall back to the
// engine defaults.
type Options struct {
	MatchThreshold float32
	MatchCount     int
}

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MaterialSource lists a persona's ready materials, newest first.
type MaterialSource interface {
	ListReadyMaterials(ctx context.Context, personaID string) ([]storage.Material, error)
}

// LinkSource lists a persona's reference links.
type LinkSource interface {
	ListLinks(ctx context.Context, personaID string) ([]storage.Link, error)
}

// FallbackSearcher is the generic-knowledge collaborator consulted when a
// persona has no materials and no links. Best effort: an empty result is
// a valid answer.
type FallbackSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]Item, error)
}

// query is the resolved form passed to each tier.
type query struct {
	personaID string
	text      string
	vec       []float32
	threshold float32
	count     int
}

// tierResolver is one link in the fallback chain. A nil result (with nil
// error) means "this tier has nothing, try the next one".
type tierResolver interface {
	resolve(ctx context.Context, q query) (*Result, error)
}

// Engine ranks and selects grounding content across the three tiers.
type Engine struct {
	embedder Embedder
	tiers    []tierResolver

	threshold float32
	count     int
}

// NewEngine creates an Engine with the standard chain: materials, then
// links, then fallback. fallback may be nil, in which case tier 3 always
// yields nothing.
func NewEngine(embedder Embedder, materials MaterialSource, links LinkSource, fallback FallbackSearcher) *Engine {
	tiers := []tierResolver{
		&materialsTier{source: materials},
		&linksTier{source: links},
	}
	if fallback != nil {
		tiers = append(tiers, &fallbackTier{searcher: fallback})
	}
	return &Engine{
		embedder:  embedder,
		tiers:     tiers,
		threshold: DefaultMatchThreshold,
		count:     DefaultMatchCount,
	}
}

// SetDefaults overrides the engine-wide threshold and count. Zero values
// keep the current setting.
func (e *Engine) SetDefaults(threshold float32, count int) {
	if threshold > 0 {
		e.threshold = threshold
	}
	if count > 0 {
		e.count = count
	}
}

// ResolveContext resolves grounding context with the engine defaults.
func (e *Engine) ResolveContext(ctx context.Context, personaID, queryText string) (Result, error) {
	return e.ResolveContextWith(ctx, personaID, queryText, Options{})
}

// ResolveContextWith resolves grounding context with per-call overrides.
// An embedding failure aborts resolution entirely: falling through to the
// link tier on a failed embed would conflate "no good match" with
// "couldn't search".
func (e *Engine) ResolveContextWith(ctx context.Context, personaID, queryText string, opts Options) (Result, error) {
	vec, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return Result{}, fmt.Errorf("embedding query: %w", err)
	}

	q := query{
		personaID: personaID,
		text:      queryText,
		vec:       vec,
		threshold: e.threshold,
		count:     e.count,
	}
	if opts.MatchThreshold > 0 {
		q.threshold = opts.MatchThreshold
	}
	if opts.MatchCount > 0 {
		q.count = opts.MatchCount
	}

	for _, tier := range e.tiers {
		res, err := tier.resolve(ctx, q)
		if err != nil {
			return Result{}, err
		}
		if res != nil {
			return *res, nil
		}
	}
	return Result{Tier: TierNone}, nil
}

// materialsTier scores the persona's ready materials against the query
// vector.
type materialsTier struct {
	source MaterialSource
}

func (t *materialsTier) resolve(ctx context.Context, q query) (*Result, error) {
	materials, err := t.source.ListReadyMaterials(ctx, q.personaID)
	if err != nil {
		return nil, fmt.Errorf("listing materials: %w", err)
	}

	items := make([]Item, 0, len(materials))
	for _, m := range materials {
		score := cosineSimilarity(q.vec, m.Embedding)
		if score < q.threshold {
			continue
		}
		items = append(items, Item{
			ID:      m.ID,
			Content: m.ExtractedText,
			Source:  m.SourceName,
			Score:   score,
		})
	}
	if len(items) == 0 {
		return nil, nil
	}

	// Materials arrive newest first; the stable sort preserves that order
	// for equal scores, which is the tie-break rule.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	if len(items) > q.count {
		items = items[:q.count]
	}
	return &Result{Tier: TierMaterials, Items: items}, nil
}

// linksTier returns the persona's reference links, unranked. Links carry
// no embeddings, so there is nothing to score.
type linksTier struct {
	source LinkSource
}

func (t *linksTier) resolve(ctx context.Context, q query) (*Result, error) {
	links, err := t.source.ListLinks(ctx, q.personaID)
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	if len(links) == 0 {
		return nil, nil
	}

	items := make([]Item, len(links))
	for i, l := range links {
		content := l.Title
		if l.Description != "" {
			content += " — " + l.Description
		}
		items[i] = Item{ID: l.ID, Content: content, Source: l.URL}
	}
	return &Result{Tier: TierLinks, Items: items}, nil
}

// fallbackTier delegates to the generic knowledge service.
type fallbackTier struct {
	searcher FallbackSearcher
}

func (t *fallbackTier) resolve(ctx context.Context, q query) (*Result, error) {
	items, err := t.searcher.Search(ctx, q.text, q.count)
	if err != nil {
		return nil, fmt.Errorf("fallback search: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &Result{Tier: TierFallback, Items: items}, nil
}

// cosineSimilarity computes dot(a,b) / (‖a‖·‖b‖). Mismatched lengths or a
// zero-norm vector yield 0, not an error: an unembeddable comparison is
// simply not a match.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, aNormSq, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aNormSq += float64(a[i]) * float64(a[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	if aNormSq == 0 || bNormSq == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(aNormSq) * math.Sqrt(bNormSq)))
}
