package scanner

// EffectiveSet computes the scanner set an application may evaluate:
// built-in scanners, union scanners belonging to premium packages the
// tenant has purchased (or every premium package for super-admins),
// union scanners privately owned by this application (invariant 3).
type EffectiveSet struct {
	scanners map[string]Scanner // by scanner ID
}

// NewEffectiveSet builds the effective set for one application.
//
// builtin is every active builtin-package scanner; premiumByPackage maps
// package ID to its active scanners; purchasedPackageIDs is the set of
// package IDs approved for this tenant; isSuperAdmin bypasses the
// purchase check and grants every premium package; custom is the set of
// scanners privately owned by this application via CustomScanner rows.
func NewEffectiveSet(
	builtin []Scanner,
	premiumByPackage map[string][]Scanner,
	purchasedPackageIDs map[string]bool,
	isSuperAdmin bool,
	custom []Scanner,
) EffectiveSet {
	out := make(map[string]Scanner)
	for _, s := range builtin {
		if s.Active {
			out[s.ID] = s
		}
	}
	for pkgID, scanners := range premiumByPackage {
		if !isSuperAdmin && !purchasedPackageIDs[pkgID] {
			continue
		}
		for _, s := range scanners {
			if s.Active {
				out[s.ID] = s
			}
		}
	}
	for _, s := range custom {
		if s.Active {
			out[s.ID] = s
		}
	}
	return EffectiveSet{scanners: out}
}

// Scanners returns the effective set as a slice, in no particular order;
// callers that need deterministic ordering should sort by Tag.
func (e EffectiveSet) Scanners() []Scanner {
	out := make([]Scanner, 0, len(e.scanners))
	for _, s := range e.scanners {
		out = append(out, s)
	}
	return out
}

// Contains reports whether scannerID is in the effective set.
func (e EffectiveSet) Contains(scannerID string) bool {
	_, ok := e.scanners[scannerID]
	return ok
}

// ForDimension filters the effective set to scanners in the given
// dimension.
func (e EffectiveSet) ForDimension(dim func(Scanner) bool) []Scanner {
	var out []Scanner
	for _, s := range e.scanners {
		if dim(s) {
			out = append(out, s)
		}
	}
	return out
}
