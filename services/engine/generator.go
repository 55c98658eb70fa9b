// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine turns one natural-language question into one
// grammar-constrained candidate query.
//
// The adapter treats the language model as an untrusted collaborator:
// the grammar artifact is shipped with every request as the hard
// output constraint, and every candidate the model returns is checked
// against the shared validator before it is accepted. A refusal, a
// transport error, or a non-conformant response is a clean failure
// carried in the result, never a panic. One question, one attempt, one
// result: no retries, no caching.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/guardrail-labs/sqlfence/services/grammar"
)

// DefaultModel is used when OPENAI_MODEL is not set.
const DefaultModel = "gpt-5"

// refusalSentinel is the exact reply the model is instructed to give
// when a question cannot be expressed inside the grammar.
const refusalSentinel = "NO_QUERY"

// GenerationResult is the immutable outcome of one generation attempt.
// Exactly one of SQL and Error is meaningful: a clean failure carries
// an empty SQL and a non-empty Error.
type GenerationResult struct {
	Success bool   `json:"success"`
	SQL     string `json:"sql,omitempty"`
	Error   string `json:"error,omitempty"`
	Model   string `json:"model"`
}

// chatCompleter is the slice of the OpenAI client the generator needs.
// Narrowed so tests can inject a fake.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Generator generates whitelisted ClickHouse SQL from natural
// language. Safe for concurrent use.
type Generator struct {
	client    chatCompleter
	model     string
	spec      *grammar.Spec
	validator *grammar.Validator
}

// Option customizes a Generator.
type Option func(*Generator)

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(g *Generator) { g.model = model }
}

// WithCompleter overrides the OpenAI client. Used by tests.
func WithCompleter(c chatCompleter) Option {
	return func(g *Generator) { g.client = c }
}

// NewGenerator creates a generator bound to the given grammar spec.
//
// The validator is built from the same Spec instance whose Text() is
// sent to the model, so the constraint and the acceptance check can
// never diverge. Reads OPENAI_API_KEY (required unless WithCompleter
// is supplied) and OPENAI_MODEL from the environment.
func NewGenerator(spec *grammar.Spec, opts ...Option) (*Generator, error) {
	validator, err := grammar.NewValidator(spec)
	if err != nil {
		return nil, fmt.Errorf("compile grammar: %w", err)
	}

	g := &Generator{
		model:     os.Getenv("OPENAI_MODEL"),
		spec:      spec,
		validator: validator,
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.client == nil {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			slog.Error("OPENAI_API_KEY environment variable not set")
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		g.client = openai.NewClient(apiKey)
	}

	slog.Info("Initializing query generator", "model", g.model)
	return g, nil
}

// Model returns the model name this generator calls.
func (g *Generator) Model() string { return g.model }

// Generate converts one natural-language question into SQL using the
// configured model.
//
// Outcomes:
//   - Success with grammar-valid SQL: the first response choice whose
//     extracted output validates.
//   - Clean failure: the model declined (refusal sentinel or empty
//     output), no choice was grammar-conformant, or the transport
//     call failed. The cause is captured in Error.
//
// Never panics and never returns a Go error; the result carries
// everything.
func (g *Generator) Generate(ctx context.Context, question string) GenerationResult {
	return g.GenerateWithModel(ctx, question, "")
}

// GenerateWithModel is Generate with a per-request model override.
// An empty model falls back to the configured default.
func (g *Generator) GenerateWithModel(ctx context.Context, question, model string) GenerationResult {
	if model == "" {
		model = g.model
	}
	slog.Debug("Generating SQL", "model", model)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: g.userPrompt(question)},
		},
	})
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return GenerationResult{
			Success: false,
			Error:   fmt.Sprintf("OpenAI API call failed: %v", err),
			Model:   model,
		}
	}

	if len(resp.Choices) == 0 {
		return GenerationResult{
			Success: false,
			Error:   "no SQL generated: model returned no choices",
			Model:   model,
		}
	}

	declined := false
	for _, choice := range resp.Choices {
		sql, ok := extractSQL(choice.Message.Content)
		if !ok {
			declined = true
			continue
		}
		if err := g.validator.Validate(sql); err != nil {
			slog.Warn("Discarding non-conformant candidate", "error", err)
			continue
		}
		return GenerationResult{Success: true, SQL: sql, Model: model}
	}

	reason := "no SQL generated: no response choice conformed to the grammar"
	if declined {
		reason = "no SQL generated: model declined the constrained output"
	}
	return GenerationResult{Success: false, Error: reason, Model: model}
}

// systemPrompt embeds the grammar artifact as the hard output
// constraint together with the allowed-operation summary.
func (g *Generator) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are an analytics assistant that converts questions into ClickHouse SQL.\n\n")
	b.WriteString("You MUST reply with exactly one SQL query that is derivable from the grammar below, ")
	b.WriteString("and nothing else. If the question cannot be expressed inside the grammar, reply with ")
	b.WriteString("exactly " + refusalSentinel + ".\n\n")
	b.WriteString(g.spec.ToolDescription())
	b.WriteString("\n\nGRAMMAR (Lark syntax; your entire reply must be derivable from the start rule):\n\n")
	b.WriteString(g.spec.Text())
	return b.String()
}

func (g *Generator) userPrompt(question string) string {
	var b strings.Builder
	b.WriteString(g.spec.SchemaPrompt())
	b.WriteString("\n\nUSER QUESTION: ")
	b.WriteString(question)
	b.WriteString("\n\nGenerate a SQL query. Make sure the query:\n")
	b.WriteString("1. Answers the user's question\n")
	b.WriteString("2. Conforms to the grammar constraints\n")
	b.WriteString("3. Uses appropriate aggregations and filters")
	return b.String()
}

// extractSQL normalizes one response choice into a candidate query.
// Tolerates surrounding whitespace and markdown code fences. Returns
// ok=false for an empty reply or the refusal sentinel.
func extractSQL(content string) (string, bool) {
	text := strings.TrimSpace(content)
	if text == "" || text == refusalSentinel {
		return "", false
	}

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```sql")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	// A grammar sentence never spans lines; if the model wrapped the
	// query in prose, keep the line that looks like the statement.
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "SELECT ") {
			return line, true
		}
	}
	if text == refusalSentinel {
		return "", false
	}
	return text, true
}
