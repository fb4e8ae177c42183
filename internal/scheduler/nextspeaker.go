package scheduler

import (
	"context"
	"encoding/json"

	"github.com/samsaffron/turnsched/internal/history"
	"github.com/samsaffron/turnsched/internal/modelapi"
)

// nextSpeakerSchema constrains the auxiliary classification call to a
// reasoning string plus a user/model verdict.
var nextSpeakerSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"reasoning": map[string]any{"type": "string"},
		"next_speaker": map[string]any{
			"type": "string",
			"enum": []string{"user", "model"},
		},
	},
	"required": []string{"reasoning", "next_speaker"},
}

type nextSpeakerResult struct {
	Reasoning   string `json:"reasoning"`
	NextSpeaker string `json:"next_speaker"`
}

// checkNextSpeaker implements the model-stream step that runs whenever
// a turn ends with no tool calls: decide whether the model still owes
// the user more output before control returns to them. Two shortcuts
// bypass the auxiliary model call entirely:
//   - the last comprehensive message is a function response (the model
//     just got tool results back and hasn't yet reacted to them)
//   - the last comprehensive message is a model message with no usable
//     parts (nothing to show the user yet); EnsureLastModelMessageNonEmpty
//     pads it with an empty text part as a side effect
//
// Outside those shortcuts, this issues a non-streaming GenerateJSON
// call; its own result does not count toward MaxTurns, only the
// continuation turn it may trigger does. A classification failure of
// any kind defaults to "user", the safe choice that simply stops the
// loop rather than risking an unbounded continuation.
func (s *Scheduler) checkNextSpeaker(ctx context.Context) string {
	comprehensive := s.History.Comprehensive()
	if len(comprehensive) == 0 {
		return "user"
	}
	last := comprehensive[len(comprehensive)-1]
	for _, p := range last.Parts {
		if p.Kind == modelapi.PartFunctionResult {
			return "model"
		}
	}
	if s.History.EnsureLastModelMessageNonEmpty() {
		return "model"
	}

	curated := history.Curated(s.History.Comprehensive())
	raw, err := s.Model.GenerateJSON(ctx, curated, nextSpeakerSchema)
	if err != nil {
		s.Logger.Warn("next-speaker check failed", "error", err)
		return "user"
	}
	var result nextSpeakerResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.Logger.Warn("next-speaker check returned invalid JSON", "error", err)
		return "user"
	}
	if result.NextSpeaker != "model" {
		return "user"
	}
	return "model"
}
