// Package history implements the Chat Session: the comprehensive and
// curated views over conversation history, the merge rules that keep
// history well-formed as turns are appended, and the compression
// snapshot used when the curated view grows too large for the model's
// context window.
package history

import "github.com/samsaffron/turnsched/internal/modelapi"

// History holds the comprehensive record of every message appended
// during a session, plus derivation of the curated view the model
// actually sees.
type History struct {
	comprehensive []modelapi.Message
}

// New returns an empty History.
func New() *History { return &History{} }

// Append adds a message to the comprehensive record.
func (h *History) Append(m modelapi.Message) {
	h.comprehensive = append(h.comprehensive, m)
}

// Reset replaces the comprehensive record wholesale, used by the
// scheduler when a CompressionSnapshot takes over the session.
func (h *History) Reset(messages []modelapi.Message) {
	h.comprehensive = append([]modelapi.Message(nil), messages...)
}

// Comprehensive returns every message ever appended, including ones
// curation would drop. Used for session persistence and debugging, not
// for model requests.
func (h *History) Comprehensive() []modelapi.Message {
	out := make([]modelapi.Message, len(h.comprehensive))
	copy(out, h.comprehensive)
	return out
}

// Curated returns the view sent to the model: user/model groups where
// every model message in the group has at least one non-empty part are
// kept; a group containing an empty model message (the model produced
// nothing usable, e.g. a dropped tool call with no text) is dropped
// entirely, user turn and all, so the model is never shown a
// conversation that implies it said nothing.
func Curated(messages []modelapi.Message) []modelapi.Message {
	var curated []modelapi.Message
	i := 0
	for i < len(messages) {
		group, next := nextGroup(messages, i)
		if groupIsUsable(group) {
			curated = append(curated, group...)
		}
		i = next
	}
	return curated
}

// nextGroup returns the contiguous run starting at a user message (or
// at i==0 for a leading system/model message) through the model
// messages that follow it, and the index just past the group.
func nextGroup(messages []modelapi.Message, i int) ([]modelapi.Message, int) {
	start := i
	i++
	for i < len(messages) && messages[i].Role == modelapi.RoleModel {
		i++
	}
	return messages[start:i], i
}

func groupIsUsable(group []modelapi.Message) bool {
	for _, m := range group {
		if m.Role == modelapi.RoleModel && len(nonEmptyParts(m.Parts)) == 0 {
			return false
		}
	}
	return true
}

func nonEmptyParts(parts []modelapi.Part) []modelapi.Part {
	var kept []modelapi.Part
	for _, p := range parts {
		if p.Kind == modelapi.PartText && p.Text == "" {
			continue
		}
		if p.Kind == modelapi.PartThought {
			continue // thought-only parts never count toward usability
		}
		kept = append(kept, p)
	}
	return kept
}

// EnsureLastModelMessageNonEmpty appends an empty text part to the
// last comprehensive message if it's a model message with no usable
// parts, so a subsequent Curated view never drops the group it belongs
// to. Reports whether it made a change.
func (h *History) EnsureLastModelMessageNonEmpty() bool {
	if len(h.comprehensive) == 0 {
		return false
	}
	last := &h.comprehensive[len(h.comprehensive)-1]
	if last.Role != modelapi.RoleModel {
		return false
	}
	if len(nonEmptyParts(last.Parts)) > 0 {
		return false
	}
	last.Parts = append(last.Parts, modelapi.Part{Kind: modelapi.PartText, Text: ""})
	return true
}

// Merge appends next onto base, applying the history merge rules:
//   - thought-only parts are dropped (thoughts never persist across a
//     call boundary)
//   - role alternation is preserved by inserting an empty model message
//     if two user messages would otherwise land adjacently
//   - adjacent text parts within a single message are coalesced
//   - if both the last entry of base and the first entry of next are
//     text-only messages from the same role, they are merged into one
//     entry instead of appended as two
func Merge(base []modelapi.Message, next []modelapi.Message) []modelapi.Message {
	out := append([]modelapi.Message(nil), base...)
	for _, m := range next {
		m = dropThoughtParts(m)
		m = coalesceText(m)
		out = appendWithAlternation(out, m)
	}
	return out
}

func dropThoughtParts(m modelapi.Message) modelapi.Message {
	var kept []modelapi.Part
	for _, p := range m.Parts {
		if p.Kind == modelapi.PartThought {
			continue
		}
		kept = append(kept, p)
	}
	m.Parts = kept
	return m
}

func coalesceText(m modelapi.Message) modelapi.Message {
	if len(m.Parts) < 2 {
		return m
	}
	var merged []modelapi.Part
	for _, p := range m.Parts {
		if p.Kind == modelapi.PartText && len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.Kind == modelapi.PartText {
				last.Text += p.Text
				continue
			}
		}
		merged = append(merged, p)
	}
	m.Parts = merged
	return m
}

func appendWithAlternation(out []modelapi.Message, m modelapi.Message) []modelapi.Message {
	if len(out) == 0 {
		return append(out, m)
	}
	last := &out[len(out)-1]

	if isTextOnly(*last) && isTextOnly(m) && last.Role == m.Role {
		last.Parts = append(last.Parts, m.Parts...)
		*last = coalesceText(*last)
		return out
	}

	if last.Role == m.Role && m.Role == modelapi.RoleUser {
		// Two user messages in a row would break alternation; splice an
		// empty model acknowledgement between them.
		out = append(out, modelapi.Message{Role: modelapi.RoleModel})
	}
	return append(out, m)
}

func isTextOnly(m modelapi.Message) bool {
	if len(m.Parts) == 0 {
		return false
	}
	for _, p := range m.Parts {
		if p.Kind != modelapi.PartText {
			return false
		}
	}
	return true
}

// CheckAlternation checks that messages strictly alternate user/model
// after any leading system message, returning the index of the first
// violation, or -1 if well-formed.
func CheckAlternation(messages []modelapi.Message) int {
	var lastRole modelapi.Role
	seen := false
	for i, m := range messages {
		if m.Role == modelapi.RoleSystem {
			continue
		}
		if seen && m.Role == lastRole {
			return i
		}
		lastRole = m.Role
		seen = true
	}
	return -1
}

// CompressionSnapshot is the state the Turn Scheduler replaces history
// with after a compaction: a synthesized summary request, seeded by a
// single acknowledged exchange so the curated view stays well-formed.
type CompressionSnapshot struct {
	Summary string
}

// Seed returns the {user: summary, model: "acknowledged"} pair a
// CompressionSnapshot resets the session to.
func (c CompressionSnapshot) Seed() []modelapi.Message {
	return []modelapi.Message{
		{Role: modelapi.RoleUser, Parts: []modelapi.Part{{Kind: modelapi.PartText, Text: c.Summary}}},
		{Role: modelapi.RoleModel, Parts: []modelapi.Part{{Kind: modelapi.PartText, Text: "acknowledged"}}},
	}
}
