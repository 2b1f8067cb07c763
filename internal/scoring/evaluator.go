package scoring

import (
	"context"
	"hash/fnv"
)

// Evaluation is the scoring outcome for one utterance against its
// reference text. Score is the overall mark, the rest are sub-metrics
// on a 0-100 scale.
type Evaluation struct {
	Score     int     `json:"score"`
	Accuracy  float64 `json:"accuracy"`
	Fluency   float64 `json:"fluency"`
	Integrity float64 `json:"integrity"`
	Feedback  string  `json:"feedback"`
}

type Evaluator interface {
	Evaluate(ctx context.Context, audio []byte, text, sessionID string) (*Evaluation, error)
}

// MockEvaluator produces a deterministic placeholder evaluation. It backs
// local development and is the degraded path when the vendor call fails:
// same audio and text always grade the same, unlike the reference
// behaviour of rolling fresh random scores per display.
type MockEvaluator struct{}

func (m *MockEvaluator) Evaluate(_ context.Context, audio []byte, text, _ string) (*Evaluation, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	h.Write(audio)
	seed := h.Sum64()

	score := 70 + int(seed%31)             // 70..100
	accuracy := 80 + float64(seed>>8%21)   // 80..100
	fluency := 80 + float64(seed>>16%21)   // 80..100
	integrity := 80 + float64(seed>>24%21) // 80..100

	return &Evaluation{
		Score:     score,
		Accuracy:  accuracy,
		Fluency:   fluency,
		Integrity: integrity,
		Feedback:  feedbackForScore(score),
	}, nil
}

func feedbackForScore(score int) string {
	switch {
	case score >= 90:
		return "Excellent pronunciation and fluent delivery, keep it up!"
	case score >= 80:
		return "Good pronunciation. Work on intonation and linking sounds."
	default:
		return "Pronunciation needs practice. Try shadowing the reference and mind the word stress."
	}
}
