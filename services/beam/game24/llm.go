// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package game24

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/beamsearch/services/beam/search"
)

// ErrNoAPIKey indicates the API key environment variable is empty.
var ErrNoAPIKey = errors.New("api key not set")

const systemPrompt = `You are solving the game of 24. Combine the given numbers with + - * / and parentheses so the equation equals the target. Every number must be used exactly once. Reply with JSON only: {"equations": [["6", "*", "4", ...], ...]}. Each equation is a list of tokens: numbers, operators, "(" and ")".`

// ChatClient is the part of the OpenAI client the generator uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMGenerator proposes equations with a chat model.
//
// The prompt carries the puzzle and, for seeded branches, the seed equation
// with its score and feedback. Errors are returned to the caller.
//
// Thread Safety: Safe for concurrent use if the client is.
type LLMGenerator struct {
	client      ChatClient
	model       string
	temperature float32
	logger      *slog.Logger
}

// LLMOption configures an LLMGenerator.
type LLMOption func(*LLMGenerator)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) LLMOption {
	return func(g *LLMGenerator) {
		g.temperature = t
	}
}

// WithLLMLogger sets the logger.
func WithLLMLogger(logger *slog.Logger) LLMOption {
	return func(g *LLMGenerator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewLLMGenerator creates a generator.
//
// Inputs:
//   - client: Chat completion client, usually from NewOpenAIClient.
//   - model: Model name, e.g. "gpt-4o-mini".
//   - opts: Optional configuration.
func NewLLMGenerator(client ChatClient, model string, opts ...LLMOption) *LLMGenerator {
	g := &LLMGenerator{
		client:      client,
		model:       model,
		temperature: 0.7,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate implements search.Generator.
func (g *LLMGenerator) Generate(ctx context.Context, req search.GenerateRequest) ([]json.RawMessage, error) {
	puzzle, err := FromProblem(req.Problem)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(puzzle, req.Seed, req.FanOut)},
		},
		Temperature: g.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("OpenAI returned no choices")
	}
	g.logger.Debug("llm generator response",
		slog.String("model", g.model),
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)),
	)

	equations, err := parseEquations(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	out := make([]json.RawMessage, 0, len(equations))
	for _, tokens := range equations {
		expr, err := Parse(tokens)
		if err != nil {
			g.logger.Debug("llm generator dropped equation",
				slog.String("equation", strings.Join(tokens, " ")),
				slog.String("error", err.Error()),
			)
			continue
		}
		raw, err := NewEquation(expr).Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func userPrompt(puzzle Puzzle, seed *search.ScoredCandidate, fanOut int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Numbers: %s\nTarget: %d\n", joinInts(puzzle.Numbers), puzzle.Target)
	if seed != nil {
		if eq, err := DecodeEquation(seed.Payload); err == nil {
			fmt.Fprintf(&b, "Previous attempt: %s\nScore: %.4f\nFeedback: %s\n",
				strings.Join(eq.Tokens, " "), seed.Score, seed.Feedback)
			fmt.Fprintf(&b, "Propose %d improved equations.\n", fanOut)
			return b.String()
		}
	}
	fmt.Fprintf(&b, "Propose %d different equations.\n", fanOut)
	return b.String()
}

// parseEquations reads {"equations": [...]} where each entry is a token
// list (strings or numbers) or a single equation string.
func parseEquations(content string) ([][]string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var body struct {
		Equations []json.RawMessage `json:"equations"`
	}
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		return nil, fmt.Errorf("parse llm response: %w", err)
	}

	out := make([][]string, 0, len(body.Equations))
	for _, raw := range body.Equations {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			tokens, err := Tokenize(s)
			if err == nil {
				out = append(out, tokens)
			}
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			continue
		}
		tokens := make([]string, 0, len(items))
		for _, item := range items {
			var tok string
			if err := json.Unmarshal(item, &tok); err != nil {
				var num json.Number
				if err := json.Unmarshal(item, &num); err != nil {
					break
				}
				tok = num.String()
			}
			tokens = append(tokens, tok)
		}
		if len(tokens) == len(items) {
			out = append(out, tokens)
		}
	}
	return out, nil
}

// SealAPIKeyFromEnv moves the named environment variable into an encrypted
// enclave and unsets it.
//
// Outputs:
//   - *memguard.Enclave: The sealed key.
//   - error: ErrNoAPIKey if the variable is empty.
func SealAPIKeyFromEnv(name string) (*memguard.Enclave, error) {
	v := os.Getenv(name)
	if v == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAPIKey, name)
	}
	_ = os.Unsetenv(name)
	return memguard.NewEnclave([]byte(v)), nil
}

// NewOpenAIClient builds an OpenAI-compatible client whose requests are
// authorized from a sealed key.
//
// Inputs:
//   - key: Sealed API key.
//   - baseURL: Endpoint override; empty uses the OpenAI default.
func NewOpenAIClient(key *memguard.Enclave, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig("")
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Transport: &keyTransport{key: key, base: http.DefaultTransport}}
	return openai.NewClientWithConfig(cfg)
}

// keyTransport opens the enclave only for the duration of one request.
type keyTransport struct {
	key  *memguard.Enclave
	base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *keyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	buf, err := t.key.Open()
	if err != nil {
		return nil, fmt.Errorf("open api key: %w", err)
	}
	defer buf.Destroy()

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+buf.String())
	return t.base.RoundTrip(r)
}
