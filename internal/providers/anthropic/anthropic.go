// Package anthropic adapts the Anthropic Messages API to the
// modelapi.Model interface, so the scheduler can drive it without
// knowing anything about Anthropic's wire format.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/samsaffron/turnsched/internal/modelapi"
)

// inputLimits mirrors the teacher's InputLimitForModel lookup: a
// best-effort table, falling back to a conservative default for models
// not listed.
var inputLimits = map[string]int{
	"claude-opus-4-6":   200000,
	"claude-sonnet-4-6": 200000,
	"claude-haiku-4-6":  200000,
}

const defaultInputLimit = 200000

// Provider implements modelapi.Model against the Anthropic API.
type Provider struct {
	client anthropic.Client
	model  string
}

// New constructs a Provider. apiKey falling back to ANTHROPIC_API_KEY
// mirrors the teacher's "env" credential mode — this adapter only
// implements that one cascade step; the fuller interactive/OAuth
// cascade is a concrete-transport concern out of this repo's scope.
func New(apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: no API key (set ANTHROPIC_API_KEY or pass one explicitly)")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Provider{client: client, model: model}, nil
}

// Capabilities reports that Anthropic models support tool calls and
// thinking blocks natively but have no built-in web search.
func (p *Provider) Capabilities() modelapi.Capabilities {
	return modelapi.Capabilities{ToolCalls: true, NativeWebSearch: false, Thoughts: true}
}

// TokenLimit returns the model's input context window.
func (p *Provider) TokenLimit() int {
	if limit, ok := inputLimits[p.model]; ok {
		return limit
	}
	return defaultInputLimit
}

// CountTokens approximates token count at roughly 4 characters per
// token, since calling out to the provider's count_tokens endpoint on
// every compression check would itself consume rate-limit budget.
func (p *Provider) CountTokens(messages []modelapi.Message) (int, error) {
	chars := 0
	for _, m := range messages {
		for _, part := range m.Parts {
			chars += len(part.Text) + len(part.ResultContent) + len(part.Arguments)
		}
	}
	return chars / 4, nil
}

// GenerateJSON issues a single non-streaming Messages.New call with a
// trailing JSON-format instruction appended as a user turn, since the
// Anthropic Messages API has no dedicated structured-output mode the
// way its tool-use schema does for function calling.
func (p *Provider) GenerateJSON(ctx context.Context, messages []modelapi.Message, schema map[string]any) (json.RawMessage, error) {
	instructed := append(append([]modelapi.Message(nil), messages...), modelapi.Message{
		Role:  modelapi.RoleUser,
		Parts: []modelapi.Part{{Kind: modelapi.PartText, Text: modelapi.JSONInstruction(schema)}},
	})
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		Messages:  toAnthropicMessages(instructed),
	}
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: generate json: %w", err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	return modelapi.ExtractJSON(text.String())
}

// SendStream issues a streaming Messages.Create call and adapts the
// Anthropic SSE event stream into modelapi.RawEvents.
func (p *Provider) SendStream(ctx context.Context, req modelapi.Request) (modelapi.Stream, error) {
	messages := toAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 8192,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	out := &stream{events: make(chan modelapi.RawEvent, 16)}
	go out.pump(ctx, p.client, params)
	return out, nil
}

type pendingToolCall struct {
	id, name string
	args     strings.Builder
}

type stream struct {
	events chan modelapi.RawEvent
	err    error
}

func (s *stream) Events() <-chan modelapi.RawEvent { return s.events }
func (s *stream) Err() error                        { return s.err }
func (s *stream) Close() error                      { return nil }

func (s *stream) pump(ctx context.Context, client anthropic.Client, params anthropic.MessageNewParams) {
	defer close(s.events)

	pending := make(map[int64]*pendingToolCall)
	sdkStream := client.Messages.NewStreaming(ctx, params)

	for sdkStream.Next() {
		event := sdkStream.Current()
		switch variant := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := variant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				pending[variant.Index] = &pendingToolCall{id: block.ID, name: block.Name}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := variant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					s.events <- modelapi.RawEvent{Kind: modelapi.RawTextDelta, TextDelta: delta.Text}
				}
			case anthropic.ThinkingDelta:
				if delta.Thinking != "" {
					s.events <- modelapi.RawEvent{Kind: modelapi.RawThoughtDelta, TextDelta: delta.Thinking}
				}
			case anthropic.InputJSONDelta:
				if tc, ok := pending[variant.Index]; ok && delta.PartialJSON != "" {
					tc.args.WriteString(delta.PartialJSON)
				}
			}
		case anthropic.ContentBlockStopEvent:
			if tc, ok := pending[variant.Index]; ok {
				delete(pending, variant.Index)
				raw := tc.args.String()
				if raw == "" {
					raw = "{}"
				}
				s.events <- modelapi.RawEvent{Kind: modelapi.RawFunctionCall, CallID: tc.id, ToolName: tc.name, Arguments: []byte(raw)}
			}
		case anthropic.MessageDeltaEvent:
			if variant.Usage.OutputTokens > 0 {
				s.events <- modelapi.RawEvent{Kind: modelapi.RawUsageMetadata, Usage: modelapi.Usage{
					InputTokens:  int(variant.Usage.InputTokens),
					OutputTokens: int(variant.Usage.OutputTokens),
				}}
			}
		}
	}

	if err := sdkStream.Err(); err != nil {
		s.err = err
		s.events <- modelapi.RawEvent{Kind: modelapi.RawError, Err: err, ContextOverflow: isOverflow(err)}
		return
	}
	s.events <- modelapi.RawEvent{Kind: modelapi.RawDone}
}

func isOverflow(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context length") || strings.Contains(msg, "too long") || strings.Contains(msg, "maximum context")
}

func toAnthropicMessages(messages []modelapi.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range messages {
		if m.Role == modelapi.RoleSystem {
			continue // system is carried on params.System, not as a message
		}
		var blocks []anthropic.ContentBlockParamUnion
		for _, p := range m.Parts {
			switch p.Kind {
			case modelapi.PartText:
				if p.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(p.Text))
				}
			case modelapi.PartFunctionCall:
				var input any
				_ = json.Unmarshal(p.Arguments, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(p.CallID, input, p.ToolName))
			case modelapi.PartFunctionResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(p.CallID, p.ResultContent, p.ResultIsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if m.Role == modelapi.RoleUser {
			out = append(out, anthropic.NewUserMessage(blocks...))
		} else {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out
}

func toAnthropicTools(specs []modelapi.ToolSpec) []anthropic.ToolUnionParam {
	var out []anthropic.ToolUnionParam
	for _, spec := range specs {
		props, _ := spec.Schema["properties"]
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: props},
			},
		})
	}
	return out
}
