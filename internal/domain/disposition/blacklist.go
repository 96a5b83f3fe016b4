package disposition

import (
	"strings"

	"github.com/sentinelops/gatekeep/internal/domain/detect"
	"github.com/sentinelops/gatekeep/internal/domain/scanner"
)

// MatchesWhitelist reports whether any enabled whitelist keyword appears
// (substring, case-insensitive) in any message. Whitelists trump
// everything else in the resolver.
func MatchesWhitelist(messages []detect.Message, whitelists []scanner.List) bool {
	for _, list := range whitelists {
		if !list.Active || list.Kind != scanner.ListWhitelist {
			continue
		}
		if listMatches(messages, list) {
			return true
		}
	}
	return false
}

// MatchedBlacklists returns the names of every enabled blacklist that
// matches any message, in the order the lists are given. Blacklists fire
// regardless of sensitivity thresholds; each match contributes a
// compliance category named after the list at high_risk.
func MatchedBlacklists(messages []detect.Message, blacklists []scanner.List) []string {
	var names []string
	for _, list := range blacklists {
		if !list.Active || list.Kind != scanner.ListBlacklist {
			continue
		}
		if listMatches(messages, list) {
			names = append(names, list.Name)
		}
	}
	return names
}

func listMatches(messages []detect.Message, list scanner.List) bool {
	for _, msg := range messages {
		lower := strings.ToLower(msg.Content)
		for _, kw := range list.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}
