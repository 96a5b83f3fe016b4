package disposition

import (
	"context"
	"sort"

	"github.com/sentinelops/gatekeep/internal/domain/anonymize"
	"github.com/sentinelops/gatekeep/internal/domain/detect"
	"github.com/sentinelops/gatekeep/internal/domain/kb"
	"github.com/sentinelops/gatekeep/internal/domain/policyconf"
	"github.com/sentinelops/gatekeep/internal/domain/risk"
	"github.com/sentinelops/gatekeep/internal/domain/scanner"
)

// AnswerRewriter optionally rewrites a KB answer into a safe, positive
// reply before it is returned to the caller. Callers MUST be able to
// disable this step (Deps.RewriteKBAnswer = false).
type AnswerRewriter interface {
	Rewrite(ctx context.Context, kbAnswer string) (string, error)
}

// Input is everything the resolver needs that is not itself a policy
// lookup: the conversation, the list config, and the three already
// computed dimension verdicts.
type Input struct {
	Messages     []detect.Message
	Side         Side
	Whitelists   []scanner.List
	Blacklists   []scanner.List
	Compliance   detect.DimensionVerdict
	Security     detect.DimensionVerdict
	Data         detect.DimensionVerdict
	DataEntities []detect.Entity
}

// Deps bundles the policy tables and lookup ports the resolver consults.
type Deps struct {
	DataPolicy              *policyconf.DataLeakagePolicy
	DataPolicyTenantDefault *policyconf.DataLeakagePolicy
	GatewayPolicy           *policyconf.GatewayPolicy
	GatewayPolicyTenantDefault *policyconf.GatewayPolicy

	HasSafeModel bool
	SafeModelID  string

	KB          kb.VectorIndex
	KBByTag     map[string]kb.KnowledgeBase // scanner tag / list name -> KB
	TemplateFor func(identifierType policyconf.ScannerIdentifierType, identifier string) *policyconf.Template

	Language        string
	DefaultLanguage string

	RewriteKBAnswer bool
	Rewriter        AnswerRewriter

	AnonymizeMethodFor func(entityType string) anonymize.Method
	AnonymizeGenerator anonymize.Generator
	// WantRestore selects anonymize-with-restore (proxy input path) over
	// direct anonymize-in-place (output path or gateway-integration
	// process-output without a session).
	WantRestore bool
}

// Resolve runs the ordered disposition steps (§4.2) and returns the
// combined action.
func Resolve(ctx context.Context, in Input, deps Deps) (Result, error) {
	if MatchesWhitelist(in.Messages, in.Whitelists) {
		return Result{Action: ActionPass, OverallLevel: risk.NoRisk}, nil
	}

	blacklistNames := MatchedBlacklists(in.Messages, in.Blacklists)
	complianceLevel := in.Compliance.Level
	complianceCategories := append([]string{}, in.Compliance.Categories...)
	if len(blacklistNames) > 0 {
		complianceLevel = risk.Max(complianceLevel, risk.HighRisk)
		sort.Strings(blacklistNames)
		complianceCategories = append(blacklistNames, complianceCategories...)
	}

	dataResult, dataFired := resolveDataLeakage(ctx, in, deps)
	gatewayResult, gatewayFired := resolveGateway(ctx, in, deps, complianceLevel, complianceCategories)

	overall := risk.MaxOf(complianceLevel, in.Security.Level, in.Data.Level)

	final := combine(dataResult, dataFired, gatewayResult, gatewayFired)
	final.OverallLevel = overall
	final.Score = maxOf(in.Compliance.Score, in.Security.Score, in.Data.Score)
	final.Categories = Categories{
		Compliance: complianceCategories,
		Security:   in.Security.Categories,
		Data:       in.Data.Categories,
	}
	return final, nil
}

func maxOf(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// combine picks the winning action by priority: reject beats
// replace_with_anonymized beats switch_private_model beats replace
// beats pass. Data-leakage disposal and security/compliance disposal
// are independent steps that can both fire; the more restrictive
// outcome always wins so neither step can be used to bypass the other.
func combine(data Result, dataFired bool, gateway Result, gatewayFired bool) Result {
	priority := func(a Action) int {
		switch a {
		case ActionReject:
			return 4
		case ActionReplaceWithAnonymized:
			return 3
		case ActionSwitchPrivateModel:
			return 2
		case ActionReplace:
			return 1
		default:
			return 0
		}
	}
	best := Result{Action: ActionPass}
	if dataFired && priority(data.Action) > priority(best.Action) {
		best = data
	}
	if gatewayFired && priority(gateway.Action) > priority(best.Action) {
		best = gateway
	}
	return best
}

func resolveDataLeakage(ctx context.Context, in Input, deps Deps) (Result, bool) {
	var action policyconf.DataLeakageAction
	if in.Side == SideOutput {
		action = policyconf.ResolveOutputAction(in.Data.Level, deps.DataPolicy, deps.DataPolicyTenantDefault)
	} else {
		action = policyconf.ResolveInputAction(in.Data.Level, deps.DataPolicy, deps.DataPolicyTenantDefault)
	}

	switch action {
	case policyconf.DataActionBlock:
		answer := dataLeakageTemplate(in, deps)
		return Result{Action: ActionReject, Answer: answer}, true

	case policyconf.DataActionSwitchModel:
		// Invariant 4: never produce switch_private_model for output risks
		// unless a safe model is configured; downgrade to block otherwise.
		if !deps.HasSafeModel {
			return Result{Action: ActionReject, Answer: dataLeakageTemplate(in, deps)}, true
		}
		return Result{Action: ActionSwitchPrivateModel, SwitchUpstreamID: deps.SafeModelID}, true

	case policyconf.DataActionAnonymize:
		if !deps.HasSafeModel && in.Side == SideOutput {
			// Invariant 4 also covers anonymize-on-output without a safe
			// model configured to receive the anonymized continuation.
			return Result{Action: ActionReject, Answer: dataLeakageTemplate(in, deps)}, true
		}
		return anonymizeResult(in, deps), true

	default: // pass
		return Result{Action: ActionPass}, false
	}
}

func anonymizeResult(in Input, deps Deps) Result {
	methodFor := deps.AnonymizeMethodFor
	if methodFor == nil {
		methodFor = func(string) anonymize.Method { return anonymize.MethodMask }
	}

	if deps.WantRestore {
		merged := anonymize.RestoreMapping{}
		var rendered string
		for i, msg := range in.Messages {
			out, mapping := anonymize.AnonymizeWithRestore(msg.Content, entitiesIn(in.DataEntities, i, in.Messages))
			for k, v := range mapping {
				merged[k] = v
			}
			if i == len(in.Messages)-1 {
				rendered = out
			}
		}
		return Result{Action: ActionReplaceWithAnonymized, AnonymizedMessage: rendered, RestoreMapping: merged}
	}

	last := in.Messages[len(in.Messages)-1]
	out, err := anonymize.Anonymize(last.Content, in.DataEntities, methodFor, deps.AnonymizeGenerator)
	if err != nil {
		return Result{Action: ActionReject, Answer: dataLeakageTemplate(in, deps)}
	}
	return Result{Action: ActionReplaceWithAnonymized, AnonymizedMessage: out}
}

// entitiesIn returns, for the last message only, the DataEntities whose
// [Start:End] span in its content equals their Text; every earlier
// message gets no entities, since Entity does not carry a message index.
func entitiesIn(entities []detect.Entity, i int, messages []detect.Message) []detect.Entity {
	if i != len(messages)-1 {
		return nil
	}
	content := messages[i].Content
	var out []detect.Entity
	for _, e := range entities {
		if e.End <= len(content) && content[e.Start:e.End] == e.Text {
			out = append(out, e)
		}
	}
	return out
}

func dataLeakageTemplate(in Input, deps Deps) string {
	identifier := "data_leakage"
	if len(in.Data.MatchedTags) > 0 {
		identifier = in.Data.MatchedTags[0]
	}
	tpl := deps.TemplateFor(policyconf.IdentifierScanner, identifier)
	return policyconf.Resolve(tpl, deps.Language, deps.DefaultLanguage)
}

func resolveGateway(ctx context.Context, in Input, deps Deps, complianceLevel risk.Level, complianceCategories []string) (Result, bool) {
	combined := risk.Max(complianceLevel, in.Security.Level)
	action := policyconf.ResolveGatewayAction(combined, deps.GatewayPolicy, deps.GatewayPolicyTenantDefault)

	categories := Categories{Compliance: complianceCategories, Security: in.Security.Categories}
	identifier, ok := FirstCategory(in.Security.Level, complianceLevel, categories)

	switch action {
	case policyconf.GatewayActionBlock:
		return Result{Action: ActionReject, Answer: gatewayAnswer(ctx, in, deps, identifier, ok)}, true
	case policyconf.GatewayActionReplace:
		return Result{Action: ActionReplace, Answer: gatewayAnswer(ctx, in, deps, identifier, ok)}, true
	default:
		return Result{Action: ActionPass}, false
	}
}

func gatewayAnswer(ctx context.Context, in Input, deps Deps, identifier string, hasIdentifier bool) string {
	if !hasIdentifier {
		return policyconf.Resolve(nil, deps.Language, deps.DefaultLanguage)
	}
	if deps.KB != nil && deps.KBByTag != nil {
		if k, ok := deps.KBByTag[identifier]; ok {
			query := lastMessageContent(in.Messages)
			if m, hit := kb.Lookup(ctx, deps.KB, k, query); hit {
				answer := m.Answer
				if deps.RewriteKBAnswer && deps.Rewriter != nil {
					if rewritten, err := deps.Rewriter.Rewrite(ctx, answer); err == nil {
						answer = rewritten
					}
				}
				return answer
			}
		}
	}
	tpl := deps.TemplateFor(policyconf.IdentifierScanner, identifier)
	return policyconf.Resolve(tpl, deps.Language, deps.DefaultLanguage)
}

func lastMessageContent(messages []detect.Message) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1].Content
}
