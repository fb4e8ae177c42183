package scheduler

import (
	"context"
	"fmt"

	"github.com/samsaffron/turnsched/internal/history"
)

// tryCompressAndNotify wraps tryCompress and emits an EventChatCompressed
// update whenever a compaction actually happened, so a listener can
// tell the user their history just shrank.
func (s *Scheduler) tryCompressAndNotify(ctx context.Context, force bool) error {
	compressed, originalTokens, newTokens, err := s.tryCompress(ctx, force)
	if err != nil {
		return err
	}
	if compressed {
		s.emit(Event{Kind: EventChatCompressed, OriginalTokenCount: originalTokens, NewTokenCount: newTokens})
	}
	return nil
}

// tryCompress checks the curated history against the configured
// compression threshold and, if it's crossed (or force is true, as
// when called reactively after a context-overflow error), replaces
// history with a CompressionSnapshot seeded from a fresh summary.
// With no Summarizer configured, compaction is disabled and this is a
// no-op regardless of force. Returns whether a compaction happened
// along with the token counts observed just before and just after.
func (s *Scheduler) tryCompress(ctx context.Context, force bool) (compressed bool, originalTokens, newTokens int, err error) {
	if s.Summarizer == nil {
		return false, 0, 0, nil
	}

	curated := history.Curated(s.History.Comprehensive())
	originalTokens, err = s.Model.CountTokens(curated)
	if err != nil {
		return false, 0, 0, fmt.Errorf("count tokens for compression check: %w", err)
	}
	if !force {
		limit := s.Model.TokenLimit()
		if limit <= 0 || float64(originalTokens) < s.Config.CompressionThreshold*float64(limit) {
			return false, 0, 0, nil
		}
	}

	summary, err := s.Summarizer.Summarize(ctx, curated)
	if err != nil {
		return false, 0, 0, fmt.Errorf("summarize for compression: %w", err)
	}

	snap := history.CompressionSnapshot{Summary: summary}
	seed := snap.Seed()
	s.History.Reset(seed)

	newTokens, err = s.Model.CountTokens(seed)
	if err != nil {
		s.Logger.Warn("count tokens after compression failed", "error", err)
	}
	s.Logger.Info("compressed history", "forced", force, "original_tokens", originalTokens, "new_tokens", newTokens)
	return true, originalTokens, newTokens, nil
}
