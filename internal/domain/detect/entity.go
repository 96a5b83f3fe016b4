package detect

import (
	"regexp"
	"strings"

	"github.com/sentinelops/gatekeep/internal/domain/scanner"
)

// Entity is one detected data-leakage span: the exact matched text, its
// lower-snake-case entity type (email, phone_number, id_card_number,
// …), and its byte offsets within the message it was found in.
type Entity struct {
	Text       string
	EntityType string
	Start      int
	End        int
}

// ExtractEntities scans messages for data-dimension scanner matches and
// returns every occurrence as an Entity, in no particular order.
// EntityType is derived from the scanner's Name, lowercased and
// snake-cased; regex scanners contribute the whole match (capture groups
// are not consulted), matching the original source's behavior of treating the
// scanner tag itself as the PII category when no finer entity taxonomy
// is defined.
func ExtractEntities(messages []Message, dataScanners []scanner.Scanner) []Entity {
	var out []Entity
	for _, s := range dataScanners {
		entityType := toSnakeCase(s.Name)
		switch s.Type {
		case scanner.KindRegex:
			re, err := regexp.Compile(s.Definition)
			if err != nil {
				continue
			}
			out = append(out, extractRegexEntities(messages, re, entityType)...)
		case scanner.KindKeyword:
			out = append(out, extractKeywordEntities(messages, splitKeywords(s.Definition), entityType)...)
		}
		// GenAI data scanners flag at the message level without precise
		// spans; they contribute to the dimension verdict's categories but
		// not to the entity list consumed by the anonymizer.
	}
	return out
}

func extractRegexEntities(messages []Message, re *regexp.Regexp, entityType string) []Entity {
	var out []Entity
	for _, msg := range messages {
		for _, loc := range re.FindAllStringIndex(msg.Content, -1) {
			out = append(out, Entity{
				Text:       msg.Content[loc[0]:loc[1]],
				EntityType: entityType,
				Start:      loc[0],
				End:        loc[1],
			})
		}
	}
	return out
}

func extractKeywordEntities(messages []Message, keywords []string, entityType string) []Entity {
	var out []Entity
	for _, msg := range messages {
		lower := strings.ToLower(msg.Content)
		for _, kw := range keywords {
			idx := 0
			for {
				pos := strings.Index(lower[idx:], kw)
				if pos < 0 {
					break
				}
				start := idx + pos
				end := start + len(kw)
				out = append(out, Entity{
					Text:       msg.Content[start:end],
					EntityType: entityType,
					Start:      start,
					End:        end,
				})
				idx = end
			}
		}
	}
	return out
}

func toSnakeCase(name string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range name {
		switch {
		case r == ' ' || r == '-':
			b.WriteByte('_')
			prevLower = false
		case r >= 'A' && r <= 'Z':
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = true
		}
	}
	return strings.Trim(b.String(), "_")
}
