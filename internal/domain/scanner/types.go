// Package scanner holds the scanner/package/list entities and the
// polymorphic scanner-kind tagged variant evaluated by the detect
// package. A scanner is keyed by a unique tag (S1…S21 reserved for
// built-ins, S100+ for custom); soft-deletion renames the tag to
// preserve the unique index while freeing the original tag for reuse.
package scanner

import (
	"fmt"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/risk"
)

// PackageType is the kind of ScannerPackage.
type PackageType string

const (
	PackageBuiltin     PackageType = "builtin"
	PackagePurchasable PackageType = "purchasable"
	PackageCustom      PackageType = "custom"
)

// Package is a named bundle of scanners.
type Package struct {
	ID          string
	Code        string
	Name        string
	Author      string
	Version     string
	License     string
	Description string
	Type        PackageType
	CreatedAt   time.Time
}

// Kind is the polymorphic scanner implementation: GenAI-prompted
// classifier, regex, or keyword set. No class hierarchy — each kind
// implements the same matches(window) contract in the detect package.
type Kind string

const (
	KindGenAI   Kind = "genai"
	KindRegex   Kind = "regex"
	KindKeyword Kind = "keyword"
)

// Scanner is a single detector.
type Scanner struct {
	ID        string
	PackageID string // nullable for tenant-custom scanners
	Tag       string // unique across active scanners
	Name      string
	Description string
	Type      Kind
	// Definition holds the GenAI category text, the regex pattern, or the
	// newline-separated keyword list, depending on Type.
	Definition string

	DefaultRiskLevel  risk.Level
	DefaultScanPrompt bool
	DefaultScanResponse bool
	Active            bool
	CreatedAt          time.Time
}

// deletedTagSuffix marks a soft-deleted scanner's renamed tag.
const deletedTagSuffix = "_deleted_"

// SoftDeleteTag renames tag to free it for reuse while preserving
// uniqueness, using the Unix timestamp of deletion.
func SoftDeleteTag(tag string, deletedAt time.Time) string {
	return fmt.Sprintf("%s%s%d", tag, deletedTagSuffix, deletedAt.Unix())
}

// Dimension returns the risk dimension this scanner's tag maps to. The
// split is static per tag, not per call: PII/secret-style tags map to
// data, attack/phishing/malware/weapons/self-harm tags map to security,
// everything else maps to compliance.
func (s Scanner) Dimension() risk.Dimension {
	return DimensionForTag(s.Tag)
}

// securityTagPrefixes lists the E1-E4 scan-api alias tags, which are
// security. Tags found in none of the built-in maps, custom scanners
// (S100+) included, are compliance; there is no per-package or
// per-caller override.
var securityTagPrefixes = map[string]bool{
	"E1": true, "E2": true, "E3": true, "E4": true, // prompt injection/jailbreak/phishing/malware scan-api aliases
}

// DimensionForTag classifies a scanner tag into one of the three
// dimensions. Built-in tag ranges are grounded in the original source's
// restricted_topics/sensitive_topics package layout: S9-S14 (prompt
// attacks and related, defaultSecurityTags below) and the E1-E4
// scan-email/webpage family are security; the data-leakage tags listed
// in defaultDataTags below are data; everything else is compliance.
func DimensionForTag(tag string) risk.Dimension {
	if securityTagPrefixes[tag] {
		return risk.DimensionSecurity
	}
	if defaultSecurityTags[tag] {
		return risk.DimensionSecurity
	}
	if defaultDataTags[tag] {
		return risk.DimensionData
	}
	return risk.DimensionCompliance
}

// defaultSecurityTags and defaultDataTags are the static built-in tag
// classifications, fixed as map literals in this file.
var defaultSecurityTags = map[string]bool{
	"S9":  true, // Prompt Attacks
	"S10": true, // Jailbreak
	"S11": true, // Phishing
	"S12": true, // Malware
	"S13": true, // Weapons
	"S14": true, // Self-harm
}

var defaultDataTags = map[string]bool{
	"S15": true, // PII: email/phone/id-card etc.
	"S16": true,
	"S17": true,
	"S18": true,
}

// ApplicationConfig is a per-(application, scanner) override row. A nil
// override means "use the scanner's default".
type ApplicationConfig struct {
	ApplicationID string
	ScannerID     string
	IsEnabled     bool
	RiskLevel     *risk.Level
	ScanPrompt    *bool
	ScanResponse  *bool
}

// EffectiveRiskLevel returns the configured override, else the scanner
// default.
func (c ApplicationConfig) EffectiveRiskLevel(def risk.Level) risk.Level {
	if c.RiskLevel != nil {
		return *c.RiskLevel
	}
	return def
}

// EffectiveScanPrompt returns the configured override, else the scanner
// default.
func (c ApplicationConfig) EffectiveScanPrompt(def bool) bool {
	if c.ScanPrompt != nil {
		return *c.ScanPrompt
	}
	return def
}

// EffectiveScanResponse returns the configured override, else the
// scanner default.
func (c ApplicationConfig) EffectiveScanResponse(def bool) bool {
	if c.ScanResponse != nil {
		return *c.ScanResponse
	}
	return def
}

// CustomScanner joins an application to a scanner it privately owns.
// Deleting it soft-deletes the underlying Scanner.
type CustomScanner struct {
	ApplicationID string
	ScannerID     string
}

// PurchaseStatus is the approval state of a PackagePurchase.
type PurchaseStatus string

const (
	PurchasePending  PurchaseStatus = "pending"
	PurchaseApproved PurchaseStatus = "approved"
	PurchaseRejected PurchaseStatus = "rejected"
)

// Purchase is a (tenant, package) grant. Only Approved rows grant
// premium access; super-admins bypass this check entirely.
type Purchase struct {
	ID        string
	TenantID  string
	PackageID string
	Status    PurchaseStatus
}

// ListKind distinguishes a Blacklist from a Whitelist; both share the
// same named-keyword-set shape.
type ListKind string

const (
	ListBlacklist ListKind = "blacklist"
	ListWhitelist ListKind = "whitelist"
)

// List is a per-application named set of case-insensitive keywords.
type List struct {
	ID            string
	ApplicationID string
	Kind          ListKind
	Name          string
	Keywords      []string
	Active        bool
}
