// Package genaiclient implements the detect.GenAIClassifier,
// appeal.AIReviewer, disposition.AnswerRewriter and anonymize.Generator
// ports against an OpenAI-compatible guardrails model API, using
// sashabaranov/go-openai as the wire client.
package genaiclient

import (
	"context"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sentinelops/gatekeep/internal/config"
	"github.com/sentinelops/gatekeep/internal/domain/anonymize"
	"github.com/sentinelops/gatekeep/internal/domain/appeal"
)

// Client wraps an OpenAI-compatible chat completion endpoint configured
// as the guardrails safety model. It implements every port in the
// gateway that needs a model call: scanner classification, appeal
// re-review, KB answer rewriting and generative anonymization.
type Client struct {
	client *openai.Client
	model  string
}

// New builds a Client from the detection config's guardrails model
// settings (spec.md §6 detection.guardrails_model_*).
func New(cfg config.DetectionConfig) *Client {
	oaiCfg := openai.DefaultConfig(cfg.GuardrailsModelAPIKey)
	if cfg.GuardrailsModelAPIURL != "" {
		oaiCfg.BaseURL = cfg.GuardrailsModelAPIURL
	}
	return &Client{
		client: openai.NewClientWithConfig(oaiCfg),
		model:  cfg.GuardrailsModelName,
	}
}

// Classify implements detect.GenAIClassifier. It asks the safety model
// a yes/no question about instruction and derives a sensitivity score
// from the first response token's log-probability (exp(logprob)), per
// the domain package's documented score semantics.
func (c *Client) Classify(ctx context.Context, instruction string) (bool, []string, float64, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: instruction},
		},
		Temperature: 0,
		MaxTokens:   64,
		LogProbs:    true,
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return false, nil, 0, fmt.Errorf("genaiclient: classify: %w", err)
	}
	if len(resp.Choices) == 0 {
		return false, nil, 0, fmt.Errorf("genaiclient: classify: empty response")
	}
	choice := resp.Choices[0]
	unsafe, tags := parseClassification(choice.Message.Content)

	score := 1.0
	if choice.LogProbs != nil && len(choice.LogProbs.Content) > 0 {
		score = math.Exp(float64(choice.LogProbs.Content[0].LogProb))
	}
	return unsafe, tags, score, nil
}

// Review implements appeal.AIReviewer: it re-examines previously
// blocked content with a re-review-specific prompt and maps the
// model's verdict onto an appeal outcome.
func (c *Client) Review(ctx context.Context, r appeal.Record, content string) (appeal.Outcome, string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: appealReviewSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
		Temperature: 0,
		MaxTokens:   256,
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return appeal.OutcomeUpheld, "", fmt.Errorf("genaiclient: appeal review: %w", err)
	}
	if len(resp.Choices) == 0 {
		return appeal.OutcomeUpheld, "", fmt.Errorf("genaiclient: appeal review: empty response")
	}
	note := strings.TrimSpace(resp.Choices[0].Message.Content)
	if strings.HasPrefix(strings.ToUpper(note), "OVERTURN") {
		return appeal.OutcomeOverturned, note, nil
	}
	return appeal.OutcomeUpheld, note, nil
}

// Rewrite implements disposition.AnswerRewriter: it turns a raw KB
// answer into a safe, positively-framed reply.
func (c *Client) Rewrite(ctx context.Context, kbAnswer string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: rewriteSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: kbAnswer},
		},
		Temperature: 0.3,
		MaxTokens:   512,
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("genaiclient: rewrite answer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("genaiclient: rewrite answer: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Generate implements anonymize.Generator for the genai_natural and
// genai_code methods; regex_replace and the purely local methods never
// reach this.
func (c *Client) Generate(method anonymize.Method, entityType, text string) (string, error) {
	var system string
	switch method {
	case anonymize.MethodGenAINatural:
		system = genAINaturalSystemPrompt
	case anonymize.MethodGenAICode:
		system = genAICodeSystemPrompt
	default:
		return "", fmt.Errorf("genaiclient: generate: unsupported method %q", method)
	}
	resp, err := c.client.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("entity_type=%s\nvalue=%s", entityType, text)},
		},
		Temperature: 0.7,
		MaxTokens:   64,
	})
	if err != nil {
		return "", fmt.Errorf("genaiclient: generate replacement: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("genaiclient: generate replacement: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// parseClassification reads the model's "UNSAFE: tag1,tag2" / "SAFE"
// convention out of its free-text reply.
func parseClassification(content string) (bool, []string) {
	line := strings.TrimSpace(content)
	upper := strings.ToUpper(line)
	if !strings.HasPrefix(upper, "UNSAFE") {
		return false, nil
	}
	rest := line[len("UNSAFE"):]
	rest = strings.TrimPrefix(strings.TrimSpace(rest), ":")
	var tags []string
	for _, t := range strings.Split(rest, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return true, tags
}

const classifySystemPrompt = `You are a content safety classifier. Given unsafe categories and a ` +
	`conversation, reply on a single line: "UNSAFE: <comma-separated category tags>" if the ` +
	`conversation violates any listed category, otherwise reply "SAFE".`

const appealReviewSystemPrompt = `You are reviewing a request that was automatically blocked by a ` +
	`content safety gateway. Decide whether the block should stand. Start your reply with ` +
	`"UPHOLD" or "OVERTURN" followed by a short justification.`

const rewriteSystemPrompt = `Rewrite the following knowledge-base answer so it is safe and ` +
	`positively framed, preserving its factual content.`

const genAINaturalSystemPrompt = `Generate a realistic but fake replacement value of the same ` +
	`entity type as the input, suitable for substitution in natural-language text. Reply with ` +
	`only the replacement value.`

const genAICodeSystemPrompt = `Generate a realistic but fake replacement value of the same ` +
	`entity type as the input, suitable for substitution inside source code. Reply with only ` +
	`the replacement value.`
