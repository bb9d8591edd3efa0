package flashcards

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/internal/llm"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

type scriptedGenerator struct {
	available bool
	response  string
	err       error
	calls     int
}

func (g *scriptedGenerator) Available() bool { return g.available }

func (g *scriptedGenerator) Generate(context.Context, llm.GenerateRequest) (string, error) {
	g.calls++
	return g.response, g.err
}

func TestCardLimit(t *testing.T) {
	tests := []struct {
		name      string
		topics    []string
		requested int
		want      int
	}{
		{"default when nothing requested", nil, 0, DefaultCardsPerTopic},
		{"requested count wins", nil, 12, 12},
		{"topic count wins over smaller request", []string{"a", "b", "c", "d", "e", "f"}, 3, 6},
		{"capped at maximum", nil, 200, MaxTotalCards},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CardLimit(tt.topics, tt.requested))
		})
	}
}

func TestSynthesize_ParsesFencedJSON(t *testing.T) {
	gen := &scriptedGenerator{
		available: true,
		response: "```json\n[{\"topic\":\"biology\",\"term\":\"Mitosis\",\"definition\":\"Cell division producing identical cells.\"}]\n```",
	}
	syn := New(gen, nil)

	settings := storage.ProcessingSettings{FlashcardTopics: []string{"biology"}, FlashcardCount: 5}
	settings.Normalize()
	proposals, err := syn.Synthesize(context.Background(), "notes", settings)

	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, "Mitosis", proposals[0].Term)
}

func TestSynthesize_BackendUnavailable(t *testing.T) {
	syn := New(&scriptedGenerator{available: false}, nil)
	_, err := syn.Synthesize(context.Background(), "notes", storage.ProcessingSettings{})
	assert.ErrorIs(t, err, llm.ErrUnavailable)
}

func TestSynthesize_NoTopicsSkipsBackend(t *testing.T) {
	gen := &scriptedGenerator{available: true, response: `[{"topic":"x","term":"t","definition":"d"}]`}
	syn := New(gen, nil)

	settings := storage.ProcessingSettings{GenerateFlashcards: true}
	settings.Normalize()
	proposals, err := syn.Synthesize(context.Background(), "notes", settings)

	require.NoError(t, err)
	assert.Empty(t, proposals)
	assert.Equal(t, 0, gen.calls)
}

func TestSynthesize_EmptyTextSkipsBackend(t *testing.T) {
	gen := &scriptedGenerator{available: true, response: `[{"topic":"x","term":"t","definition":"d"}]`}
	syn := New(gen, nil)

	settings := storage.ProcessingSettings{GenerateFlashcards: true, FlashcardTopics: []string{"x"}}
	settings.Normalize()
	proposals, err := syn.Synthesize(context.Background(), "   \n", settings)

	require.NoError(t, err)
	assert.Empty(t, proposals)
	assert.Equal(t, 0, gen.calls)
}

func TestFilterProposals_DropsInvalidAndOffTopic(t *testing.T) {
	proposals := []Proposal{
		{Topic: "biology", Term: "Mitosis", Definition: "Cell division."},
		{Topic: "biology", Term: "", Definition: "missing term"},
		{Topic: "biology", Term: "Meiosis", Definition: ""},
		{Topic: "history", Term: "Treaty", Definition: "Off topic card."},
	}

	out := filterProposals(proposals, []string{"biology"}, 10, 4)

	require.Len(t, out, 1)
	assert.Equal(t, "Mitosis", out[0].Term)
}

func TestFilterProposals_EnforcesPerTopicCeiling(t *testing.T) {
	var proposals []Proposal
	for i := 0; i < 8; i++ {
		proposals = append(proposals, Proposal{Topic: "chem", Term: "t", Definition: "d"})
	}

	out := filterProposals(proposals, []string{"chem"}, 50, 4)

	assert.Len(t, out, 4)
}

func TestFilterProposals_EnforcesTotalBudget(t *testing.T) {
	var proposals []Proposal
	for i := 0; i < 10; i++ {
		proposals = append(proposals, Proposal{Topic: "a", Term: "t", Definition: "d"})
		proposals = append(proposals, Proposal{Topic: "b", Term: "t", Definition: "d"})
	}

	out := filterProposals(proposals, []string{"a", "b"}, 5, 10)

	assert.Len(t, out, 5)
}

func TestTruncateWords(t *testing.T) {
	long := strings.Repeat("word ", 60)
	out := truncateWords(strings.TrimSpace(long), DefinitionWordLimit)

	words := strings.Fields(out)
	assert.Len(t, words, DefinitionWordLimit)
	assert.True(t, strings.HasSuffix(out, "."))

	short := "already short definition"
	assert.Equal(t, short, truncateWords(short, DefinitionWordLimit))
}

func TestMergeCards_PreservesManualReplacesAI(t *testing.T) {
	jobID := uuid.New()
	manualCard := &storage.Flashcard{ID: uuid.New(), JobID: jobID, Term: "kept", Source: storage.FlashcardSourceManual, Position: 0}
	oldAI := &storage.Flashcard{ID: uuid.New(), JobID: jobID, Term: "stale", Source: storage.FlashcardSourceAI, Position: 1}

	manual, generated := MergeCards(
		[]*storage.Flashcard{manualCard, oldAI},
		[]Proposal{{Topic: "t", Term: "fresh", Definition: "new card"}},
	)

	require.Len(t, manual, 1)
	assert.Equal(t, "kept", manual[0].Term)

	require.Len(t, generated, 1)
	assert.Equal(t, "fresh", generated[0].Term)
	assert.Equal(t, storage.FlashcardSourceAI, generated[0].Source)
	assert.NotEqual(t, oldAI.ID, generated[0].ID)
	assert.Equal(t, 1, generated[0].Position)
}
