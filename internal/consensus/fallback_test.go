package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verdictlabs/verdict-api/internal/models"
)

func newTestFallback() *FallbackCache {
	cfg := testConfig()
	return NewFallbackCache(cfg, NewVocabularyClassifier(cfg.FuzzyThreshold))
}

func TestFallbackBuildIsDeterministic(t *testing.T) {
	fallback := newTestFallback()

	submission := models.Submission{
		ID:             "sub-1",
		Code:           "os.system(user_input)",
		ValidationType: models.ValidationSecurity,
	}

	first := fallback.Build(submission)
	second := fallback.Build(submission)

	require.Equal(t, first.Confidence, second.Confidence)
	require.Equal(t, first.Rating, second.Rating)
	require.Len(t, second.Issues, len(first.Issues))
	for i := range first.Issues {
		require.Equal(t, first.Issues[i].Text, second.Issues[i].Text)
	}
	require.Equal(t, first.Suggestions, second.Suggestions)
}

func TestFallbackBuildMarksResultOffline(t *testing.T) {
	fallback := newTestFallback()

	result := fallback.Build(models.Submission{
		ID:             "sub-2",
		Code:           "stake = bet * odds",
		ValidationType: models.ValidationBetting,
	})

	require.True(t, result.Offline)
	require.Empty(t, result.AgentsUsed)
	require.Empty(t, result.AgentResults)
	require.GreaterOrEqual(t, result.Confidence, 0.45)
	require.LessOrEqual(t, result.Confidence, 0.75)
	require.NotEmpty(t, result.Issues)
	require.NotEmpty(t, result.Suggestions)
	require.LessOrEqual(t, len(result.Issues), 3)
}

func TestFallbackBuildNeverClaimsAgents(t *testing.T) {
	fallback := newTestFallback()

	result := fallback.Build(models.Submission{
		ID:             "sub-3",
		Code:           "x = 1",
		ValidationType: models.ValidationGeneral,
	})

	for _, issue := range result.Issues {
		require.Empty(t, issue.Agents)
	}
}

func TestFallbackUnknownTypeFallsBackToGeneralPool(t *testing.T) {
	fallback := newTestFallback()

	result := fallback.Build(models.Submission{
		ID:             "sub-4",
		Code:           "x = 1",
		ValidationType: models.ValidationType("unknown"),
	})

	require.True(t, result.Offline)
	require.NotEmpty(t, result.Issues)
}
