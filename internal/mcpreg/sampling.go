package mcpreg

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/samsaffron/turnsched/internal/modelapi"
)

// ModelSampler implements Sampler by routing a server's
// sampling/createMessage request through a host modelapi.Model,
// auto-approving once a server has been approved for the process
// lifetime (or unconditionally, under YoloMode).
type ModelSampler struct {
	model     modelapi.Model
	yoloMode  bool
	mu        sync.Mutex
	approved  map[string]bool
}

// NewModelSampler returns a ModelSampler backed by model.
func NewModelSampler(model modelapi.Model, yoloMode bool) *ModelSampler {
	return &ModelSampler{model: model, yoloMode: yoloMode, approved: make(map[string]bool)}
}

// Approve marks serverName as approved for sampling for the remainder
// of the process lifetime, the scope the teacher's approvedServers map
// tracks.
func (s *ModelSampler) Approve(serverName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved[serverName] = true
}

// IsApproved reports whether serverName may sample without a fresh
// confirmation prompt.
func (s *ModelSampler) IsApproved(serverName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.yoloMode || s.approved[serverName]
}

// Sample answers req by streaming a completion from the host model and
// collecting it into a single CreateMessageResult, mirroring the
// teacher's SamplingHandler.Handle — minus the approval UI prompt,
// which is this repo's out-of-scope surface. Callers (mcpreg/Manager via
// the Tool Call Manager's ConfirmMCP gate) are expected to have already
// confirmed the request before invoking Sample.
func (s *ModelSampler) Sample(ctx context.Context, serverName string, req *mcp.CreateMessageRequest) (*mcp.CreateMessageResult, error) {
	if !s.IsApproved(serverName) {
		return nil, fmt.Errorf("mcpreg: sampling not approved for server %s", serverName)
	}

	messages := convertSamplingMessages(req.Params.Messages)
	modelReq := modelapi.Request{Messages: messages}
	if req.Params.SystemPrompt != "" {
		modelReq.System = req.Params.SystemPrompt
	}

	stream, err := s.model.SendStream(ctx, modelReq)
	if err != nil {
		return nil, fmt.Errorf("mcpreg: sampling stream: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	for ev := range stream.Events() {
		switch ev.Kind {
		case modelapi.RawTextDelta:
			text.WriteString(ev.TextDelta)
		case modelapi.RawError:
			return nil, ev.Err
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	return &mcp.CreateMessageResult{
		Content:    &mcp.TextContent{Text: text.String()},
		Role:       "assistant",
		StopReason: "endTurn",
	}, nil
}

// convertSamplingMessages converts MCP sampling messages to the model
// transport's own Message shape, folding everything to text content —
// sampling requests don't carry tool calls.
func convertSamplingMessages(msgs []*mcp.SamplingMessage) []modelapi.Message {
	out := make([]modelapi.Message, 0, len(msgs))
	for _, m := range msgs {
		role := modelapi.RoleUser
		if m.Role == "assistant" {
			role = modelapi.RoleModel
		}
		text := ""
		if tc, ok := m.Content.(*mcp.TextContent); ok {
			text = tc.Text
		}
		out = append(out, modelapi.Message{Role: role, Parts: []modelapi.Part{{Kind: modelapi.PartText, Text: text}}})
	}
	return out
}
