package detect

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sentinelops/gatekeep/internal/domain/policyconf"
	"github.com/sentinelops/gatekeep/internal/domain/risk"
	"github.com/sentinelops/gatekeep/internal/domain/scanner"
)

// DimensionVerdict is the per-dimension outcome of the scanner engine:
// the aggregated risk level, the matched scanners' human-readable names
// ordered by effective risk level (desc) then tag (asc), and the maximum
// GenAI sensitivity score observed across windows (0 if no GenAI scanner
// contributed).
type DimensionVerdict struct {
	Level      risk.Level
	Categories []string
	Score      float64
	// MatchedTags is Categories' underlying scanner tags, same order,
	// used by the disposition resolver to pick a template/KB lookup key.
	MatchedTags []string
}

// ScannerResult carries a single scanner's merged result across all
// windows of one call, prior to dimension aggregation.
type ScannerResult struct {
	Scanner scanner.Scanner
	Matched bool
	Score   *float64 // max across windows, GenAI only
}

// RunDimension evaluates the scanners belonging to one dimension against
// a conversation, honoring per-application enable/override config and
// scan_prompt/scan_response direction, and returns the aggregated
// verdict. classifier may be nil if no GenAI scanner is present in
// scanners.
func RunDimension(
	ctx context.Context,
	messages []Message,
	maxContextChars int,
	scanners []scanner.Scanner,
	configs map[string]scanner.ApplicationConfig, // by scanner ID
	riskConfig policyconf.RiskTypeConfig,
	classifier GenAIClassifier,
) (DimensionVerdict, error) {
	direction, ok := LastMessageDirection(messages)
	applicable := filterApplicable(scanners, configs, direction, ok)
	if len(applicable) == 0 {
		return DimensionVerdict{Level: risk.NoRisk}, nil
	}

	windows := Split(messages, maxContextChars)

	results, err := runScanners(ctx, windows, applicable, classifier)
	if err != nil {
		return DimensionVerdict{}, err
	}

	return aggregate(results, configs, riskConfig), nil
}

// filterApplicable drops scanners disabled for this application and
// those whose direction override does not match the conversation's
// current direction.
func filterApplicable(scanners []scanner.Scanner, configs map[string]scanner.ApplicationConfig, direction Direction, haveDirection bool) []scanner.Scanner {
	var out []scanner.Scanner
	for _, s := range scanners {
		cfg, hasCfg := configs[s.ID]
		enabled := true
		if hasCfg {
			enabled = cfg.IsEnabled
		}
		if !enabled {
			continue
		}
		scanPrompt := s.DefaultScanPrompt
		scanResponse := s.DefaultScanResponse
		if hasCfg {
			scanPrompt = cfg.EffectiveScanPrompt(s.DefaultScanPrompt)
			scanResponse = cfg.EffectiveScanResponse(s.DefaultScanResponse)
		}
		if haveDirection {
			if direction == DirectionPrompt && !scanPrompt {
				continue
			}
			if direction == DirectionResponse && !scanResponse {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// runScanners fans each window out to every applicable scanner in
// parallel (errgroup), merging per-scanner results across windows by
// union-of-match and max-of-score. Callers never observe a partial
// verdict: aggregation waits for every window call to complete.
func runScanners(ctx context.Context, windows [][]Message, scanners []scanner.Scanner, classifier GenAIClassifier) ([]ScannerResult, error) {
	results := make([]ScannerResult, len(scanners))
	for i, s := range scanners {
		results[i] = ScannerResult{Scanner: s}
	}

	var mu_ struct{} // no shared mutable state beyond per-index results slots
	_ = mu_

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range scanners {
		i, s := i, s
		matcher, err := NewMatcher(s, classifier)
		if err != nil {
			// A regex compile error (or similar) disables this scanner for
			// the request; it is simply omitted from results.
			continue
		}
		g.Go(func() error {
			merged := ScannerResult{Scanner: s}
			for _, window := range windows {
				mr, err := matcher.Match(gctx, window)
				if err != nil {
					// A GenAI call failure is treated as "safe" for this
					// window; other windows/scanners still count.
					continue
				}
				if mr.Matched {
					merged.Matched = true
					merged.Score = maxScore(merged.Score, mr.Score)
				}
			}
			results[i] = merged
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func maxScore(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if *b > *a {
		return b
	}
	return a
}

// aggregate turns per-scanner merged results into the dimension verdict:
// drops GenAI matches that don't reach the trigger-adjusted threshold,
// takes the highest effective level among remaining matches, and orders
// categories by level desc then tag asc.
func aggregate(results []ScannerResult, configs map[string]scanner.ApplicationConfig, riskConfig policyconf.RiskTypeConfig) DimensionVerdict {
	type match struct {
		scanner scanner.Scanner
		level   risk.Level
		score   float64
	}

	var matches []match
	maxGenAIScore := 0.0
	for _, r := range results {
		if !r.Matched {
			continue
		}
		cfg := configs[r.Scanner.ID]
		level := cfg.EffectiveRiskLevel(r.Scanner.DefaultRiskLevel)

		if r.Scanner.Type == scanner.KindGenAI {
			score := 0.0
			if r.Score != nil {
				score = *r.Score
			}
			if score > maxGenAIScore {
				maxGenAIScore = score
			}
			scoreLevel := riskConfig.LevelForScore(score)
			if scoreLevel == risk.NoRisk || !riskConfig.Surfaces(scoreLevel) {
				continue
			}
			// The scanner counts at the lower of its configured default
			// level and what the score actually reached, since the score
			// gate is a floor on whether it surfaces at all, not a ceiling
			// override of the scanner's configured severity.
			if scoreLevel.Less(level) {
				level = scoreLevel
			}
		}

		matches = append(matches, match{scanner: r.Scanner, level: level, score: 0})
	}

	if len(matches) == 0 {
		return DimensionVerdict{Level: risk.NoRisk}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].level != matches[j].level {
			return matches[j].level.Less(matches[i].level) // desc by level
		}
		return matches[i].scanner.Tag < matches[j].scanner.Tag // asc by tag
	})

	overall := risk.NoRisk
	categories := make([]string, 0, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		overall = risk.Max(overall, m.level)
		categories = append(categories, m.scanner.Name)
		tags = append(tags, m.scanner.Tag)
	}

	return DimensionVerdict{
		Level:       overall,
		Categories:  categories,
		Score:       maxGenAIScore,
		MatchedTags: tags,
	}
}
