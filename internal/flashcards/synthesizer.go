// Package flashcards derives study flashcards from enhanced note text.
package flashcards

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/internal/llm"
	"github.com/inkwell-ai/inkwell/internal/observability"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

// Hard ceilings on generated cards.
const (
	MaxTotalCards        = 50
	DefaultCardsPerTopic = 4
	DefinitionWordLimit  = 50
)

// Generator is the text generation surface the synthesizer needs.
type Generator interface {
	Available() bool
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
}

// Proposal is a candidate card before persistence.
type Proposal struct {
	Topic      string `json:"topic"`
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// Synthesizer generates flashcard proposals from enhanced text.
type Synthesizer struct {
	backend Generator
	logger  *observability.Logger
}

// New creates a synthesizer.
func New(backend Generator, logger *observability.Logger) *Synthesizer {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Synthesizer{backend: backend, logger: logger}
}

// CardLimit computes the total card budget for a job:
// min(MaxTotalCards, max(len(topics), requested count)).
func CardLimit(topics []string, requested int) int {
	limit := requested
	if len(topics) > limit {
		limit = len(topics)
	}
	if limit <= 0 {
		limit = DefaultCardsPerTopic
	}
	if limit > MaxTotalCards {
		limit = MaxTotalCards
	}
	return limit
}

// Synthesize asks the backend for cards grounded in the enhanced text and
// returns validated proposals. The result respects the total budget and the
// per-topic ceiling. Without at least one topic and non-empty text there is
// nothing to ground cards in, so the stage is a no-op.
func (s *Synthesizer) Synthesize(ctx context.Context, enhancedText string, settings storage.ProcessingSettings) ([]Proposal, error) {
	if !s.backend.Available() {
		return nil, llm.ErrUnavailable
	}

	topics := settings.TopicsForFlashcards()
	if len(topics) == 0 || strings.TrimSpace(enhancedText) == "" {
		return nil, nil
	}
	limit := CardLimit(topics, settings.FlashcardCount)
	perTopic := settings.MaxFlashcardsPerTopic
	if perTopic <= 0 {
		perTopic = DefaultCardsPerTopic
	}

	raw, err := s.backend.Generate(ctx, llm.GenerateRequest{
		System: "You create study flashcards strictly grounded in the provided notes. " +
			"Every term and definition must come from the notes; never introduce outside facts. " +
			"Respond with a JSON array only, no prose.",
		Prompt: buildCardPrompt(enhancedText, topics, limit, perTopic),
	})
	if err != nil {
		return nil, fmt.Errorf("generate flashcards: %w", err)
	}

	proposals, err := parseProposals(raw)
	if err != nil {
		return nil, fmt.Errorf("parse flashcard response: %w", err)
	}

	return filterProposals(proposals, topics, limit, perTopic), nil
}

func buildCardPrompt(text string, topics []string, limit, perTopic int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create at most %d flashcards from the notes below", limit)
	if len(topics) > 0 {
		fmt.Fprintf(&b, ", covering these topics: %s. At most %d cards per topic", strings.Join(topics, ", "), perTopic)
	}
	b.WriteString(".\n\nReturn a JSON array of objects with keys \"topic\", \"term\" and \"definition\". Definitions must be one or two sentences.\n\nNotes:\n\n")
	b.WriteString(text)
	return b.String()
}

// parseProposals decodes the backend response, tolerating a fenced code
// block around the JSON.
func parseProposals(raw string) ([]Proposal, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var proposals []Proposal
	if err := json.Unmarshal([]byte(raw[start:end+1]), &proposals); err != nil {
		return nil, err
	}
	return proposals, nil
}

// filterProposals drops invalid cards, truncates long definitions and
// enforces the total and per-topic budgets.
func filterProposals(proposals []Proposal, topics []string, limit, perTopic int) []Proposal {
	topicSet := make(map[string]bool, len(topics))
	for _, t := range topics {
		topicSet[strings.ToLower(strings.TrimSpace(t))] = true
	}

	perTopicCount := make(map[string]int)
	out := make([]Proposal, 0, limit)
	for _, p := range proposals {
		p.Topic = strings.TrimSpace(p.Topic)
		p.Term = strings.TrimSpace(p.Term)
		p.Definition = truncateWords(strings.TrimSpace(p.Definition), DefinitionWordLimit)
		if p.Term == "" || p.Definition == "" {
			continue
		}
		if len(topics) > 0 && !topicSet[strings.ToLower(p.Topic)] {
			continue
		}
		key := strings.ToLower(p.Topic)
		if perTopicCount[key] >= perTopic {
			continue
		}
		perTopicCount[key]++
		out = append(out, p)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// truncateWords cuts text to at most n words, terminating with a period.
func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	truncated := strings.Join(words[:n], " ")
	truncated = strings.TrimRight(truncated, ".,;:")
	return truncated + "."
}

// MergeCards builds the persisted card set after synthesis: manual cards
// are preserved in place, the previous AI batch is replaced by the new
// proposals with fresh IDs, positioned after the manual cards.
func MergeCards(existing []*storage.Flashcard, proposals []Proposal) (manual []*storage.Flashcard, generated []*storage.Flashcard) {
	for _, card := range existing {
		if card.Source == storage.FlashcardSourceManual {
			manual = append(manual, card)
		}
	}

	position := len(manual)
	for _, p := range proposals {
		generated = append(generated, &storage.Flashcard{
			ID:         uuid.New(),
			Topic:      p.Topic,
			Term:       p.Term,
			Definition: p.Definition,
			Source:     storage.FlashcardSourceAI,
			Position:   position,
		})
		position++
	}
	return manual, generated
}
