// Package gemini adapts the Gemini API to the modelapi.Model
// interface. This is the adapter exercised against the demux package's
// "**subject**" thought-parsing convention: Gemini returns thought
// parts with Part.Thought set and the bolded-subject text already in
// Part.Text, which this adapter forwards untouched so demux does the
// parsing.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/samsaffron/turnsched/internal/modelapi"
)

const defaultInputLimit = 1000000

// Provider implements modelapi.Model against the Gemini API.
type Provider struct {
	apiKey string
	model  string
}

// New constructs a Provider, falling back to GEMINI_API_KEY.
func New(apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: no API key (set GEMINI_API_KEY or pass one explicitly)")
	}
	return &Provider{apiKey: apiKey, model: model}, nil
}

func (p *Provider) Capabilities() modelapi.Capabilities {
	return modelapi.Capabilities{ToolCalls: true, NativeWebSearch: true, Thoughts: true}
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

// GenerateJSON issues a single non-streaming GenerateContent call with
// ResponseMIMEType set to application/json, Gemini's native
// structured-output mode, plus a belt-and-suspenders JSON instruction
// in case the model still wraps its answer in prose.
func (p *Provider) GenerateJSON(ctx context.Context, messages []modelapi.Message, schema map[string]any) (json.RawMessage, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: p.apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	instructed := append(append([]modelapi.Message(nil), messages...), modelapi.Message{
		Role:  modelapi.RoleUser,
		Parts: []modelapi.Part{{Kind: modelapi.PartText, Text: modelapi.JSONInstruction(schema)}},
	})
	contents := toGeminiContents(instructed)
	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	resp, err := client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate json: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: generate json: no candidates returned")
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return modelapi.ExtractJSON(text.String())
}

func (p *Provider) SendStream(ctx context.Context, req modelapi.Request) (modelapi.Stream, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: p.apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	contents := toGeminiContents(req.Messages)
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = toGeminiTools(req.Tools)
	}

	out := &stream{events: make(chan modelapi.RawEvent, 16)}
	go out.pump(ctx, client, p.model, contents, config)
	return out, nil
}

type stream struct {
	events chan modelapi.RawEvent
	err    error
}

func (s *stream) Events() <-chan modelapi.RawEvent { return s.events }
func (s *stream) Err() error                        { return s.err }
func (s *stream) Close() error                      { return nil }

func (s *stream) pump(ctx context.Context, client *genai.Client, model string, contents []*genai.Content, config *genai.GenerateContentConfig) {
	defer close(s.events)

	for resp, err := range client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			s.err = err
			s.events <- modelapi.RawEvent{Kind: modelapi.RawError, Err: err, ContextOverflow: isOverflow(err)}
			return
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			switch {
			case part.Thought && part.Text != "":
				s.events <- modelapi.RawEvent{Kind: modelapi.RawThoughtDelta, TextDelta: part.Text}
			case part.Text != "":
				s.events <- modelapi.RawEvent{Kind: modelapi.RawTextDelta, TextDelta: part.Text}
			case part.FunctionCall != nil:
				args, _ := json.Marshal(part.FunctionCall.Args)
				s.events <- modelapi.RawEvent{Kind: modelapi.RawFunctionCall, CallID: part.FunctionCall.ID, ToolName: part.FunctionCall.Name, Arguments: args}
			}
		}
		if resp.UsageMetadata != nil {
			s.events <- modelapi.RawEvent{Kind: modelapi.RawUsageMetadata, Usage: modelapi.Usage{
				InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
				OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
			}}
		}
	}
	s.events <- modelapi.RawEvent{Kind: modelapi.RawDone}
}

func isOverflow(err error) bool {
	return err != nil && len(err.Error()) > 0 && containsFold(err.Error(), "context") && containsFold(err.Error(), "exceed")
}

func containsFold(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		match := true
		for j := 0; j < len(substr); j++ {
			a, b := s[i+j], substr[j]
			if 'A' <= a && a <= 'Z' {
				a += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func toGeminiContents(messages []modelapi.Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range messages {
		if m.Role == modelapi.RoleSystem {
			continue
		}
		role := genai.RoleUser
		if m.Role == modelapi.RoleModel {
			role = genai.RoleModel
		}
		content := &genai.Content{Role: role}
		for _, p := range m.Parts {
			switch p.Kind {
			case modelapi.PartText:
				if p.Text != "" {
					content.Parts = append(content.Parts, &genai.Part{Text: p.Text})
				}
			case modelapi.PartFunctionCall:
				var args map[string]any
				_ = json.Unmarshal(p.Arguments, &args)
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: p.CallID, Name: p.ToolName, Args: args}})
			case modelapi.PartFunctionResult:
				content.Parts = append(content.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       p.CallID,
					Name:     p.ToolName,
					Response: map[string]any{"result": p.ResultContent},
				}})
			}
		}
		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out
}

func toGeminiTools(specs []modelapi.ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schemaFromMap(spec.Schema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func schemaFromMap(m map[string]any) *genai.Schema {
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	var schema genai.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil
	}
	return &schema
}
