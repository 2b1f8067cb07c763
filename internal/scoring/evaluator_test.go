package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEvaluatorDeterminism(t *testing.T) {
	mock := &MockEvaluator{}
	audio := []byte("fake wav bytes")

	first, err := mock.Evaluate(context.Background(), audio, "Good morning", "sess-1")
	require.NoError(t, err)

	second, err := mock.Evaluate(context.Background(), audio, "Good morning", "sess-2")
	require.NoError(t, err)

	assert.Equal(t, first, second, "same audio and text must grade the same")

	other, err := mock.Evaluate(context.Background(), audio, "Good evening", "sess-1")
	require.NoError(t, err)
	assert.NotEqual(t, *first, *other, "different text should grade differently")
}

func TestMockEvaluatorRanges(t *testing.T) {
	mock := &MockEvaluator{}

	inputs := []string{"a", "bb", "ccc", "the quick brown fox", "she sells seashells"}
	for _, text := range inputs {
		eval, err := mock.Evaluate(context.Background(), []byte(text), text, "sess")
		require.NoError(t, err)

		assert.GreaterOrEqual(t, eval.Score, 70)
		assert.LessOrEqual(t, eval.Score, 100)
		assert.GreaterOrEqual(t, eval.Accuracy, 80.0)
		assert.LessOrEqual(t, eval.Accuracy, 100.0)
		assert.GreaterOrEqual(t, eval.Fluency, 80.0)
		assert.LessOrEqual(t, eval.Fluency, 100.0)
		assert.GreaterOrEqual(t, eval.Integrity, 80.0)
		assert.LessOrEqual(t, eval.Integrity, 100.0)
		assert.NotEmpty(t, eval.Feedback)
	}
}

func TestFeedbackBands(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{95, feedbackForScore(95)},
		{90, feedbackForScore(95)},
		{85, feedbackForScore(85)},
		{80, feedbackForScore(85)},
		{79, feedbackForScore(70)},
		{70, feedbackForScore(70)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, feedbackForScore(tt.score), "score %d", tt.score)
	}

	assert.NotEqual(t, feedbackForScore(95), feedbackForScore(85))
	assert.NotEqual(t, feedbackForScore(85), feedbackForScore(70))
}
