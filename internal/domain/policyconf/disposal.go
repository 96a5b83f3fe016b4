package policyconf

import "github.com/sentinelops/gatekeep/internal/domain/risk"

// DataLeakageAction is the disposal action for a data-risk level.
type DataLeakageAction string

const (
	DataActionBlock       DataLeakageAction = "block"
	DataActionSwitchModel DataLeakageAction = "switch_private_model"
	DataActionAnonymize   DataLeakageAction = "anonymize"
	DataActionPass        DataLeakageAction = "pass"
)

// GatewayAction is the disposal action for the security/compliance
// dimensions.
type GatewayAction string

const (
	GatewayActionBlock   GatewayAction = "block"
	GatewayActionReplace GatewayAction = "replace"
	GatewayActionPass    GatewayAction = "pass"
)

// DataLeakagePolicy is the per-(tenant|application) disposal matrix for
// the data dimension, separately for the input and output side. A nil
// entry in an ApplicationDataLeakagePolicy means "fall back to the
// tenant default"; a nil tenant entry falls back to the built-in
// default {high:block, medium:switch_private_model, low:anonymize}.
type DataLeakagePolicy struct {
	ScopeID string // tenant id or application id

	InputHighAction   *DataLeakageAction
	InputMediumAction *DataLeakageAction
	InputLowAction    *DataLeakageAction

	OutputHighAction   *DataLeakageAction
	OutputMediumAction *DataLeakageAction
	OutputLowAction    *DataLeakageAction

	// PrivateModelID is the UpstreamAPIConfig used when an action resolves
	// to switch_private_model.
	PrivateModelID string
}

func defaultDataAction(level risk.Level) DataLeakageAction {
	switch level {
	case risk.HighRisk:
		return DataActionBlock
	case risk.MediumRisk:
		return DataActionSwitchModel
	case risk.LowRisk:
		return DataActionAnonymize
	default:
		return DataActionPass
	}
}

// ResolveInputAction looks up the effective input-side data-leakage
// action for level: application override, else tenant default, else the
// built-in default matrix.
func ResolveInputAction(level risk.Level, app, tenantDefault *DataLeakagePolicy) DataLeakageAction {
	if app != nil {
		if a := pick(level, app.InputHighAction, app.InputMediumAction, app.InputLowAction); a != nil {
			return *a
		}
	}
	if tenantDefault != nil {
		if a := pick(level, tenantDefault.InputHighAction, tenantDefault.InputMediumAction, tenantDefault.InputLowAction); a != nil {
			return *a
		}
	}
	return defaultDataAction(level)
}

// ResolveOutputAction mirrors ResolveInputAction for the output side.
func ResolveOutputAction(level risk.Level, app, tenantDefault *DataLeakagePolicy) DataLeakageAction {
	if app != nil {
		if a := pick(level, app.OutputHighAction, app.OutputMediumAction, app.OutputLowAction); a != nil {
			return *a
		}
	}
	if tenantDefault != nil {
		if a := pick(level, tenantDefault.OutputHighAction, tenantDefault.OutputMediumAction, tenantDefault.OutputLowAction); a != nil {
			return *a
		}
	}
	return defaultDataAction(level)
}

func pick(level risk.Level, high, medium, low *DataLeakageAction) *DataLeakageAction {
	switch level {
	case risk.HighRisk:
		return high
	case risk.MediumRisk:
		return medium
	case risk.LowRisk:
		return low
	default:
		return nil
	}
}

// GatewayPolicy is the per-(tenant|application) disposal matrix for the
// security/compliance dimensions.
type GatewayPolicy struct {
	ScopeID string

	HighAction   *GatewayAction
	MediumAction *GatewayAction
	LowAction    *GatewayAction
}

func defaultGatewayAction(level risk.Level) GatewayAction {
	switch level {
	case risk.HighRisk:
		return GatewayActionBlock
	case risk.MediumRisk:
		return GatewayActionReplace
	default:
		return GatewayActionPass
	}
}

// ResolveGatewayAction looks up the effective security/compliance
// disposal action: application override, else tenant default, else the
// built-in default (high->block, medium->replace, low/no_risk->pass).
func ResolveGatewayAction(level risk.Level, app, tenantDefault *GatewayPolicy) GatewayAction {
	if app != nil {
		if a := pickGateway(level, app.HighAction, app.MediumAction, app.LowAction); a != nil {
			return *a
		}
	}
	if tenantDefault != nil {
		if a := pickGateway(level, tenantDefault.HighAction, tenantDefault.MediumAction, tenantDefault.LowAction); a != nil {
			return *a
		}
	}
	return defaultGatewayAction(level)
}

func pickGateway(level risk.Level, high, medium, low *GatewayAction) *GatewayAction {
	switch level {
	case risk.HighRisk:
		return high
	case risk.MediumRisk:
		return medium
	case risk.LowRisk:
		return low
	default:
		return nil
	}
}
