// Package explain produces plain-language variant explanations through a chat model.
package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/binods1313/MutationMechanic-sub000/plugin/ai"
	"github.com/binods1313/MutationMechanic-sub000/store/cache"
)

// CacheKeyPrefix prefixes the tiered-cache keys of explanations.
const CacheKeyPrefix = "ai_explain_"

var (
	// ErrDisabled is returned when no chat model is configured.
	ErrDisabled = errors.New("explainer is disabled: no AI API key configured")
	// ErrInvalidRequest is returned when gene or variant is missing.
	ErrInvalidRequest = errors.New("gene and variant are required")
)

const systemPrompt = `You are a clinical genetics assistant. Explain genetic variants for a
clinician audience in plain language. Cover the gene's normal function, the likely molecular
effect of the variant, known disease associations and what further evidence would change the
interpretation. Do not give treatment advice. Keep the answer under 250 words.`

const userTemplate = "Explain the variant %s in the gene %s."

// Explanation is a cached model answer for one variant.
type Explanation struct {
	Gene        string `json:"gene"`
	Variant     string `json:"variant"`
	Text        string `json:"text"`
	GeneratedAt int64  `json:"generatedAt"`
	Cached      bool   `json:"cached"`
}

// Service answers explanation requests, caching each answer in the tiered cache.
type Service struct {
	llm   ai.LLMService
	cache *cache.TieredCache
}

// NewService creates the service. A nil llm disables it.
func NewService(llm ai.LLMService, tc *cache.TieredCache) *Service {
	return &Service{llm: llm, cache: tc}
}

// Enabled reports whether a chat model is configured.
func (s *Service) Enabled() bool {
	return s.llm != nil
}

// CacheKey returns the tiered-cache key for a gene and variant.
func CacheKey(gene, variant string) string {
	return cache.GenerateCacheKey(CacheKeyPrefix, gene, variant)
}

// Explain returns the explanation of variant in gene, asking the model only on a cache miss.
func (s *Service) Explain(ctx context.Context, gene, variant string) (*Explanation, error) {
	gene, variant = strings.TrimSpace(gene), strings.TrimSpace(variant)
	if gene == "" || variant == "" {
		return nil, ErrInvalidRequest
	}
	if !s.Enabled() {
		return nil, ErrDisabled
	}

	key := CacheKey(gene, variant)
	var cached Explanation
	if s.cache.GetInto(ctx, key, &cached) && cached.Text != "" {
		cached.Cached = true
		return &cached, nil
	}

	messages := ai.FormatMessages(systemPrompt, fmt.Sprintf(userTemplate, variant, gene), nil)
	text, err := s.llm.Chat(ctx, messages)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate explanation")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("model returned an empty explanation")
	}

	explanation := &Explanation{
		Gene:        gene,
		Variant:     variant,
		Text:        text,
		GeneratedAt: s.cache.Now().UnixMilli(),
	}
	s.cache.Set(ctx, key, explanation)
	return explanation, nil
}
