// Package policyconf holds the per-application policy configuration
// tables consulted by the disposition resolver: sensitivity thresholds,
// the legacy per-scanner enable booleans, and the data-leakage /
// gateway disposal matrices. Cyclic config graphs (tenant default ->
// application override) are represented as flat tables with a
// lookup-or-fallback function; there is no runtime merging of dynamic
// inheritance.
package policyconf

import "github.com/sentinelops/gatekeep/internal/domain/risk"

// RiskTypeConfig is the per-application sensitivity configuration.
// LegacyEnabled holds the 21 historical s{1..21}_enabled booleans keyed
// by tag; per the resolved open question, ApplicationScannerConfig.is_enabled
// is authoritative and legacy booleans are migrated on read (see
// MigrateLegacy), not consulted at evaluation time.
type RiskTypeConfig struct {
	ApplicationID string
	LegacyEnabled map[string]bool

	// Thresholds are ordered high < medium < low in [0,1] (smaller score
	// => higher risk, consistent with a negative-log-probability
	// interpretation). A score above LowThreshold reaches low-risk, above
	// MediumThreshold reaches medium, above HighThreshold reaches high.
	HighThreshold   float64
	MediumThreshold float64
	LowThreshold    float64

	// TriggerLevel is the minimum level a GenAI match must reach to
	// surface at all.
	TriggerLevel risk.Level
}

// DefaultRiskTypeConfig returns the defaults used when an application has
// no risk-config row yet (policy-table missing -> initialize defaults on
// read, per §4.2 failure semantics).
func DefaultRiskTypeConfig(applicationID string) RiskTypeConfig {
	return RiskTypeConfig{
		ApplicationID:   applicationID,
		LegacyEnabled:   map[string]bool{},
		HighThreshold:   0.40,
		MediumThreshold: 0.60,
		LowThreshold:    0.95,
		TriggerLevel:    risk.LowRisk,
	}
}

// ThresholdFor returns the score threshold a GenAI match must reach (or
// exceed) to count as level. Levels below NoRisk are not meaningful and
// return 0.
func (c RiskTypeConfig) ThresholdFor(level risk.Level) float64 {
	switch level {
	case risk.HighRisk:
		return c.HighThreshold
	case risk.MediumRisk:
		return c.MediumThreshold
	case risk.LowRisk:
		return c.LowThreshold
	default:
		return 0
	}
}

// LevelForScore returns the highest risk level that score reaches,
// scanning from high to low since a high-risk threshold is the smallest
// number. Score exactly at a threshold counts as reaching that level
// (inclusive boundary, per §8).
func (c RiskTypeConfig) LevelForScore(score float64) risk.Level {
	switch {
	case score >= c.HighThreshold:
		return risk.HighRisk
	case score >= c.MediumThreshold:
		return risk.MediumRisk
	case score >= c.LowThreshold:
		return risk.LowRisk
	default:
		return risk.NoRisk
	}
}

// Surfaces reports whether level meets or exceeds TriggerLevel, i.e.
// whether a match at this level should be counted at all.
func (c RiskTypeConfig) Surfaces(level risk.Level) bool {
	return !level.Less(c.TriggerLevel)
}

// MigrateLegacy folds the legacy s{n}_enabled booleans into an
// ApplicationScannerConfig-shaped enabled map for scanners that have no
// explicit ApplicationScannerConfig row yet, so older deployments keep
// working until an admin writes an explicit row. Tags already present in
// explicit take precedence.
func MigrateLegacy(legacy map[string]bool, explicit map[string]bool) map[string]bool {
	out := make(map[string]bool, len(legacy)+len(explicit))
	for tag, enabled := range legacy {
		out[tag] = enabled
	}
	for tag, enabled := range explicit {
		out[tag] = enabled
	}
	return out
}
