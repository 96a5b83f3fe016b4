package detect

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sentinelops/gatekeep/internal/domain/scanner"
)

// MatchResult is the outcome of evaluating one scanner against one
// window. Score is set only for GenAI scanners (the first-token
// log-probability, exponentiated); it is nil for regex/keyword matches.
type MatchResult struct {
	Matched bool
	Tags    []string
	Score   *float64
}

// GenAIClassifier is the port to the safety-model HTTP endpoint. It is
// defined here (not in an adapter package) because it is the shape the
// domain scanner engine depends on; internal/adapter/outbound/genaiclient
// implements it against the configured guardrails model API.
type GenAIClassifier interface {
	// Classify sends instruction (the <UNSAFE CATEGORIES>+<CONVERSATION>
	// prompt) to the safety model and returns whether it judged the
	// conversation unsafe, which tags it flagged, and the sensitivity
	// score (exp of the first response token's log-probability).
	Classify(ctx context.Context, instruction string) (unsafe bool, tags []string, score float64, err error)
}

// Matcher evaluates one scanner against one window. Each scanner.Kind
// has exactly one Matcher implementation; none share a type hierarchy.
type Matcher interface {
	Match(ctx context.Context, window []Message) (MatchResult, error)
}

// NewMatcher builds the Matcher for s. For GenAI scanners it wraps the
// classifier client; compile errors for regex scanners surface at
// construction time so callers can disable and log the scanner per the
// "regex compile error disables that scanner for the request" failure
// semantics.
func NewMatcher(s scanner.Scanner, classifier GenAIClassifier) (Matcher, error) {
	switch s.Type {
	case scanner.KindGenAI:
		return genAIMatcher{scanner: s, classifier: classifier}, nil
	case scanner.KindRegex:
		re, err := regexp.Compile(s.Definition)
		if err != nil {
			return nil, fmt.Errorf("scanner %s: compile regex: %w", s.Tag, err)
		}
		return regexMatcher{scanner: s, re: re}, nil
	case scanner.KindKeyword:
		return keywordMatcher{scanner: s, keywords: splitKeywords(s.Definition)}, nil
	default:
		return nil, fmt.Errorf("scanner %s: unknown kind %q", s.Tag, s.Type)
	}
}

func splitKeywords(definition string) []string {
	lines := strings.Split(definition, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, strings.ToLower(l))
		}
	}
	return out
}

// genAIMatcher classifies a window with one Classify call per scanner:
// its instruction holds an <UNSAFE CATEGORIES> section with only this
// scanner's category line, followed by <CONVERSATION>. Category lines of
// several GenAI scanners are not combined into one instruction or call.
type genAIMatcher struct {
	scanner    scanner.Scanner
	classifier GenAIClassifier
}

// Match returns the classifier's error unchanged; the runner, not Match,
// treats a failed call as "safe" for the window.
func (m genAIMatcher) Match(ctx context.Context, window []Message) (MatchResult, error) {
	instruction := fmt.Sprintf("<UNSAFE CATEGORIES>\n%s: %s. %s\n<CONVERSATION>\n%s",
		m.scanner.Tag, m.scanner.Name, m.scanner.Definition, RenderConversation(window))

	unsafe, tags, score, err := m.classifier.Classify(ctx, instruction)
	if err != nil {
		return MatchResult{}, err
	}
	if !unsafe {
		return MatchResult{Matched: false}, nil
	}
	return MatchResult{Matched: true, Tags: tags, Score: &score}, nil
}

type regexMatcher struct {
	scanner scanner.Scanner
	re      *regexp.Regexp
}

func (m regexMatcher) Match(_ context.Context, window []Message) (MatchResult, error) {
	for _, msg := range window {
		if m.re.MatchString(msg.Content) {
			return MatchResult{Matched: true, Tags: []string{m.scanner.Tag}}, nil
		}
	}
	return MatchResult{Matched: false}, nil
}

type keywordMatcher struct {
	scanner  scanner.Scanner
	keywords []string
}

func (m keywordMatcher) Match(_ context.Context, window []Message) (MatchResult, error) {
	for _, msg := range window {
		lower := strings.ToLower(msg.Content)
		for _, kw := range m.keywords {
			if strings.Contains(lower, kw) {
				return MatchResult{Matched: true, Tags: []string{m.scanner.Tag}}, nil
			}
		}
	}
	return MatchResult{Matched: false}, nil
}
