// Package disposition implements the disposition resolver (SPEC §4.2):
// whitelist short-circuit, blacklist matching, scanner-verdict
// combination, the data-leakage and security/compliance disposal
// matrices, and KB/template answer selection.
package disposition

import (
	"github.com/sentinelops/gatekeep/internal/domain/anonymize"
	"github.com/sentinelops/gatekeep/internal/domain/risk"
)

// Action is the resolver's verdict.
type Action string

const (
	ActionPass                   Action = "pass"
	ActionReject                 Action = "reject"
	ActionReplace                Action = "replace"
	ActionReplaceWithAnonymized  Action = "replace_with_anonymized"
	ActionSwitchPrivateModel     Action = "switch_private_model"
)

// Side is which leg of the proxy pipeline produced this disposition:
// the incoming request (input) or the upstream response (output). When
// no safe model is configured, a data-leakage switch_private_model
// decision on either side, and an anonymize decision on the output side,
// become reject (invariant 4). Whether anonymization returns a restore
// mapping is chosen by Deps.WantRestore, not by Side.
type Side string

const (
	SideInput  Side = "input"
	SideOutput Side = "output"
)

// Result is the combined outcome of one resolution pass.
type Result struct {
	Action            Action
	OverallLevel      risk.Level
	Score             float64
	Answer            string
	Categories        Categories
	AnonymizedMessage string
	RestoreMapping    anonymize.RestoreMapping
	// SwitchUpstreamID is set when Action is ActionSwitchPrivateModel.
	SwitchUpstreamID string
}

// Categories groups the matched category names per dimension, each
// already ordered by effective risk level desc then scanner tag asc.
type Categories struct {
	Compliance []string
	Security   []string
	Data       []string
}

// FirstCategory returns the deterministic first category across
// dimensions, used to select a template/KB identifier: the highest of
// Security/Compliance's own first entries, since §4.2 step 5 disposes
// security/compliance together under one gateway policy keyed by the
// max of the two dimension levels.
func FirstCategory(securityLevel, complianceLevel risk.Level, categories Categories) (string, bool) {
	if securityLevel.Less(complianceLevel) {
		if len(categories.Compliance) > 0 {
			return categories.Compliance[0], true
		}
		if len(categories.Security) > 0 {
			return categories.Security[0], true
		}
		return "", false
	}
	if len(categories.Security) > 0 {
		return categories.Security[0], true
	}
	if len(categories.Compliance) > 0 {
		return categories.Compliance[0], true
	}
	return "", false
}
