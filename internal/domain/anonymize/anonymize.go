// Package anonymize implements the deterministic, order-independent
// entity substitution described in SPEC §4.8. It is grounded directly on
// original_source/backend/services/unified_anonymization_service.py:
// the placeholder shape `__<entity_type>_<n>__`, per-type counters
// starting at 1, and restoration ordered by placeholder length
// descending so `__email_1__` is never partially consumed while
// replacing `__email_12__`.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"

	"github.com/sentinelops/gatekeep/internal/domain/detect"
)

// Method is the per-entity-type anonymization technique.
type Method string

const (
	MethodMask         Method = "mask"
	MethodHash         Method = "hash"
	MethodReplace      Method = "replace"
	MethodGenAINatural Method = "genai_natural"
	MethodGenAICode    Method = "genai_code"
	MethodShuffle      Method = "shuffle"
	MethodRandom       Method = "random"
	MethodRegexReplace Method = "regex_replace"
)

// placeholderPattern matches the `__<entity_type>_<n>__` placeholder
// shape emitted by Restorable.
var placeholderPattern = regexp.MustCompile(`__[a-z_]+_\d+__`)

// Generator produces an anonymized_value for an entity at detection
// time, for methods that need more than a pure function of the text
// (genai_natural/genai_code call out to a model; regex_replace applies a
// configured pattern/template). Implementations live in
// internal/adapter/outbound/genaiclient and the policyconf-backed regex
// config; a nil Generator falls back to deterministic, local-only
// methods (mask/hash/shuffle/random/replace-with-static-token).
type Generator interface {
	Generate(method Method, entityType, text string) (string, error)
}

// Anonymize applies each entity's configured method and replaces text
// with anonymized_value directly (the data-leakage output path, or the
// input path when restoration is not requested). Replacements are
// applied longest-first to avoid partial overlaps between entities whose
// spans are substrings of one another.
func Anonymize(content string, entities []detect.Entity, methodFor func(entityType string) Method, gen Generator) (string, error) {
	type repl struct {
		text  string
		value string
	}
	var replacements []repl
	for _, e := range entities {
		method := methodFor(e.EntityType)
		value, err := anonymizedValue(method, e, gen)
		if err != nil {
			return "", err
		}
		replacements = append(replacements, repl{text: e.Text, value: value})
	}
	sort.Slice(replacements, func(i, j int) bool {
		return len(replacements[i].text) > len(replacements[j].text)
	})
	out := content
	for _, r := range replacements {
		out = strings.ReplaceAll(out, r.text, r.value)
	}
	return out, nil
}

// RestoreMapping is placeholder -> original text.
type RestoreMapping map[string]string

// AnonymizeWithRestore replaces each entity's text with a placeholder
// `__<entity_type>_<n>__`, n counting per entity type starting at 1
// within this call, and returns the rewritten content plus the mapping
// needed to invert it later. The mapping must travel with the request
// via an explicit session or request-local context, never a process
// global.
func AnonymizeWithRestore(content string, entities []detect.Entity) (string, RestoreMapping) {
	counters := map[string]int{}
	mapping := RestoreMapping{}

	type repl struct {
		text        string
		placeholder string
	}
	var replacements []repl
	for _, e := range entities {
		counters[e.EntityType]++
		placeholder := fmt.Sprintf("__%s_%d__", e.EntityType, counters[e.EntityType])
		mapping[placeholder] = e.Text
		replacements = append(replacements, repl{text: e.Text, placeholder: placeholder})
	}
	sort.Slice(replacements, func(i, j int) bool {
		return len(replacements[i].text) > len(replacements[j].text)
	})
	out := content
	for _, r := range replacements {
		out = strings.ReplaceAll(out, r.text, r.placeholder)
	}
	return out, mapping
}

// Restore replaces every placeholder in content with its original
// value, ordered by placeholder length descending so `__email_1__` is
// never partially consumed while restoring `__email_12__`. No
// placeholder is ever left unrestored if a mapping entry exists for it.
func Restore(content string, mapping RestoreMapping) string {
	placeholders := make([]string, 0, len(mapping))
	for p := range mapping {
		placeholders = append(placeholders, p)
	}
	sort.Slice(placeholders, func(i, j int) bool {
		return len(placeholders[i]) > len(placeholders[j])
	})
	out := content
	for _, p := range placeholders {
		out = strings.ReplaceAll(out, p, mapping[p])
	}
	return out
}

// HasUnrestoredPlaceholder reports whether content still contains a
// placeholder-shaped token, used as a safety check before a restored
// response leaves the proxy.
func HasUnrestoredPlaceholder(content string) bool {
	return placeholderPattern.MatchString(content)
}

func anonymizedValue(method Method, e detect.Entity, gen Generator) (string, error) {
	switch method {
	case MethodMask:
		return maskValue(e.Text), nil
	case MethodHash:
		sum := sha256.Sum256([]byte(e.Text))
		return hex.EncodeToString(sum[:])[:16], nil
	case MethodReplace:
		return fmt.Sprintf("[%s]", strings.ToUpper(e.EntityType)), nil
	case MethodShuffle:
		return shuffleValue(e.Text), nil
	case MethodRandom:
		return randomValue(len(e.Text)), nil
	case MethodGenAINatural, MethodGenAICode, MethodRegexReplace:
		if gen == nil {
			return "", fmt.Errorf("anonymize: method %q requires a Generator", method)
		}
		return gen.Generate(method, e.EntityType, e.Text)
	default:
		return "", fmt.Errorf("anonymize: unknown method %q", method)
	}
}

// maskValue keeps the first and last visible character and replaces the
// rest with asterisks, matching common PII-masking conventions (e.g.
// "alice@example.com" -> "a***************m").
func maskValue(s string) string {
	runes := []rune(s)
	if len(runes) <= 2 {
		return strings.Repeat("*", len(runes))
	}
	masked := make([]rune, len(runes))
	masked[0] = runes[0]
	masked[len(runes)-1] = runes[len(runes)-1]
	for i := 1; i < len(runes)-1; i++ {
		masked[i] = '*'
	}
	return string(masked)
}

func shuffleValue(s string) string {
	runes := []rune(s)
	rand.Shuffle(len(runes), func(i, j int) { runes[i], runes[j] = runes[j], runes[i] })
	return string(runes)
}

const randomAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomValue(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = randomAlphabet[rand.Intn(len(randomAlphabet))]
	}
	return string(out)
}
