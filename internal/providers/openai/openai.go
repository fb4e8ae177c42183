// Package openai adapts the OpenAI Chat Completions API to the
// modelapi.Model interface.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/samsaffron/turnsched/internal/modelapi"
)

const defaultInputLimit = 128000

// Provider implements modelapi.Model against the OpenAI API.
type Provider struct {
	client openai.Client
	model  string
}

// New constructs a Provider, falling back to OPENAI_API_KEY when apiKey
// is empty.
func New(apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: no API key (set OPENAI_API_KEY or pass one explicitly)")
	}
	return &Provider{client: openai.NewClient(option.WithAPIKey(apiKey)), model: model}, nil
}

func (p *Provider) Capabilities() modelapi.Capabilities {
	return modelapi.Capabilities{ToolCalls: true, NativeWebSearch: false, Thoughts: false}
}

func (p *Provider) TokenLimit() int { return defaultInputLimit }

func (p *Provider) CountTokens(messages []modelapi.Message) (int, error) {
	chars := 0
	for _, m := range messages {
		for _, part := range m.Parts {
			chars += len(part.Text) + len(part.ResultContent) + len(part.Arguments)
		}
	}
	return chars / 4, nil
}

// GenerateJSON issues a single non-streaming Chat Completions call
// with a trailing JSON-format instruction appended as a user turn.
func (p *Provider) GenerateJSON(ctx context.Context, messages []modelapi.Message, schema map[string]any) (json.RawMessage, error) {
	instructed := append(append([]modelapi.Message(nil), messages...), modelapi.Message{
		Role:  modelapi.RoleUser,
		Parts: []modelapi.Part{{Kind: modelapi.PartText, Text: modelapi.JSONInstruction(schema)}},
	})
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: toOpenAIMessages("", instructed),
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: generate json: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: generate json: no choices returned")
	}
	return modelapi.ExtractJSON(resp.Choices[0].Message.Content)
}

func (p *Provider) SendStream(ctx context.Context, req modelapi.Request) (modelapi.Stream, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: toOpenAIMessages(req.System, req.Messages),
		Tools:    toOpenAITools(req.Tools),
	}

	out := &stream{events: make(chan modelapi.RawEvent, 16)}
	go out.pump(ctx, p.client, params)
	return out, nil
}

type pendingCall struct {
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

func (s *stream) pump(ctx context.Context, client openai.Client, params openai.ChatCompletionNewParams) {
	defer close(s.events)

	sdkStream := client.Chat.Completions.NewStreaming(ctx, params)
	pending := make(map[int64]*pendingCall)

	for sdkStream.Next() {
		chunk := sdkStream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			s.events <- modelapi.RawEvent{Kind: modelapi.RawTextDelta, TextDelta: choice.Delta.Content}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := tc.Index
			pc, ok := pending[idx]
			if !ok {
				pc = &pendingCall{id: tc.ID, name: tc.Function.Name}
				pending[idx] = pc
			}
			if tc.Function.Arguments != "" {
				pc.args.WriteString(tc.Function.Arguments)
			}
		}
		if choice.FinishReason == "tool_calls" || choice.FinishReason == "stop" {
			for _, pc := range pending {
				raw := pc.args.String()
				if raw == "" {
					raw = "{}"
				}
				s.events <- modelapi.RawEvent{Kind: modelapi.RawFunctionCall, CallID: pc.id, ToolName: pc.name, Arguments: []byte(raw)}
			}
			pending = make(map[int64]*pendingCall)
		}
		if chunk.Usage.TotalTokens > 0 {
			s.events <- modelapi.RawEvent{Kind: modelapi.RawUsageMetadata, Usage: modelapi.Usage{
				InputTokens:  int(chunk.Usage.PromptTokens),
				OutputTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:  int(chunk.Usage.TotalTokens),
			}}
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
	return strings.Contains(msg, "context_length_exceeded") || strings.Contains(msg, "maximum context length")
}

func toOpenAIMessages(system string, messages []modelapi.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range messages {
		switch m.Role {
		case modelapi.RoleUser:
			for _, p := range m.Parts {
				if p.Kind == modelapi.PartText && p.Text != "" {
					out = append(out, openai.UserMessage(p.Text))
				}
				if p.Kind == modelapi.PartFunctionResult {
					out = append(out, openai.ToolMessage(p.ResultContent, p.CallID))
				}
			}
		case modelapi.RoleModel:
			var text string
			var calls []openai.ChatCompletionMessageToolCallParam
			for _, p := range m.Parts {
				if p.Kind == modelapi.PartText {
					text += p.Text
				}
				if p.Kind == modelapi.PartFunctionCall {
					calls = append(calls, openai.ChatCompletionMessageToolCallParam{
						ID: p.CallID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      p.ToolName,
							Arguments: string(p.Arguments),
						},
					})
				}
			}
			msg := openai.ChatCompletionAssistantMessageParam{}
			if text != "" {
				msg.Content.OfString = openai.String(text)
			}
			if len(calls) > 0 {
				msg.ToolCalls = calls
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &msg})
		}
	}
	return out
}

func toOpenAITools(specs []modelapi.ToolSpec) []openai.ChatCompletionToolUnionParam {
	var out []openai.ChatCompletionToolUnionParam
	for _, spec := range specs {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: openai.String(spec.Description),
			Parameters:  openai.FunctionParameters(spec.Schema),
		}))
	}
	return out
}
