package match

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/rockmrack/crownsafe/internal/metrics"
	"github.com/rockmrack/crownsafe/internal/recall"
	"go.uber.org/zap"
)

// Match tiers, strongest first. The engine stops at the first tier
// that yields results so a weak fuzzy hit never dilutes a precise
// identifier hit.
const (
	TierIdentifier = 1
	TierBrandName  = 2
	TierFuzzyName  = 3
)

type Query struct {
	Identifiers map[string]string `json:"identifiers,omitempty"`
	Name        string            `json:"name,omitempty"`
	Brand       string            `json:"brand,omitempty"`
}

type Candidate struct {
	Record recall.Record `json:"record"`
	Tier   int           `json:"tier"`
	Score  float64       `json:"score,omitempty"`
}

type Result struct {
	Tier       int         `json:"tier"`
	Candidates []Candidate `json:"candidates"`
}

type Options struct {
	SimilarityFloor float64
	MaxResults      int
}

type Engine struct {
	store  recall.Store
	logger *zap.Logger
	opts   Options
}

func NewEngine(store recall.Store, logger *zap.Logger, opts Options) *Engine {
	if opts.SimilarityFloor <= 0 || opts.SimilarityFloor > 1 {
		opts.SimilarityFloor = 0.72
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 50
	}
	return &Engine{store: store, logger: logger, opts: opts}
}

func (e *Engine) Match(ctx context.Context, q Query) (Result, error) {
	records, err := e.store.All(ctx)
	if err != nil {
		return Result{}, err
	}

	if candidates := e.matchIdentifiers(q, records); len(candidates) > 0 {
		return e.finish(TierIdentifier, candidates), nil
	}
	if candidates := e.matchBrandName(q, records); len(candidates) > 0 {
		return e.finish(TierBrandName, candidates), nil
	}
	if candidates := e.matchFuzzyName(q, records); len(candidates) > 0 {
		return e.finish(TierFuzzyName, candidates), nil
	}
	metrics.RecordMatchQuery("none")
	return Result{Candidates: []Candidate{}}, nil
}

func (e *Engine) matchIdentifiers(q Query, records []recall.Record) []Candidate {
	if len(q.Identifiers) == 0 {
		return nil
	}
	var out []Candidate
	for _, rec := range records {
		if sharesIdentifier(q.Identifiers, rec.Identifiers) {
			out = append(out, Candidate{Record: rec, Tier: TierIdentifier})
		}
	}
	return out
}

func sharesIdentifier(query, stored map[string]string) bool {
	for kind, qv := range query {
		qv = strings.TrimSpace(qv)
		if qv == "" {
			continue
		}
		if sv, ok := stored[kind]; ok && strings.EqualFold(strings.TrimSpace(sv), qv) {
			return true
		}
	}
	return false
}

func (e *Engine) matchBrandName(q Query, records []recall.Record) []Candidate {
	name := normalizeText(q.Name)
	brand := normalizeText(q.Brand)
	if name == "" || brand == "" {
		return nil
	}
	var out []Candidate
	for _, rec := range records {
		if normalizeText(rec.Brand) == brand && normalizeText(rec.Name) == name {
			out = append(out, Candidate{Record: rec, Tier: TierBrandName})
		}
	}
	return out
}

func (e *Engine) matchFuzzyName(q Query, records []recall.Record) []Candidate {
	name := normalizeText(q.Name)
	if name == "" {
		return nil
	}
	var out []Candidate
	for _, rec := range records {
		recName := normalizeText(rec.Name)
		if recName == "" {
			continue
		}
		score := levenshtein.Similarity(name, recName, nil)
		if score >= e.opts.SimilarityFloor {
			out = append(out, Candidate{Record: rec, Tier: TierFuzzyName, Score: score})
		}
	}
	return out
}

// finish ranks a tier's candidates: most recent fetched_at first, then
// (agency, source_id) so repeated calls over identical data are
// deterministic.
func (e *Engine) finish(tier int, candidates []Candidate) Result {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].Record, candidates[j].Record
		if !a.FetchedAt.Equal(b.FetchedAt) {
			return a.FetchedAt.After(b.FetchedAt)
		}
		if a.Agency != b.Agency {
			return a.Agency < b.Agency
		}
		return a.SourceID < b.SourceID
	})
	if len(candidates) > e.opts.MaxResults {
		candidates = candidates[:e.opts.MaxResults]
	}
	metrics.RecordMatchQuery(strconv.Itoa(tier))
	return Result{Tier: tier, Candidates: candidates}
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Execute lets a match query run as a plan step.
func (e *Engine) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	q := Query{Identifiers: map[string]string{}}
	if ids, ok := input["identifiers"].(map[string]any); ok {
		for kind, v := range ids {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				q.Identifiers[kind] = s
			}
		}
	}
	if name, ok := input["name"].(string); ok {
		q.Name = name
	}
	if brand, ok := input["brand"].(string); ok {
		q.Brand = brand
	}

	result, err := e.Match(ctx, q)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
