package service

import (
	"log/slog"

	"github.com/sentinelops/gatekeep/internal/domain/anonymize"
)

// AnonymizationService is the proxy path's companion to
// DispositionResolver's input-side anonymization: it restores the
// placeholders DispositionResolver.Resolve(wantRestore=true) produced
// once the upstream model's response comes back, grounded on
// original_source/backend/services/unified_anonymization_service.py's
// restore_mapping round trip (§4.8).
type AnonymizationService struct {
	logger *slog.Logger
}

// NewAnonymizationService builds an AnonymizationService. logger may be
// nil to fall back to slog.Default().
func NewAnonymizationService(logger *slog.Logger) *AnonymizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnonymizationService{logger: logger}
}

// RestoreResponse inverts mapping over the upstream model's raw
// response content. If a placeholder-shaped token survives restoration
// (a mapping miss, or the model echoed a placeholder it was never given
// meaning for), the mismatch is logged but the best-effort restored text
// is still returned rather than failing the proxy response.
func (a *AnonymizationService) RestoreResponse(requestID, content string, mapping anonymize.RestoreMapping) string {
	if len(mapping) == 0 {
		return content
	}
	restored := anonymize.Restore(content, mapping)
	if anonymize.HasUnrestoredPlaceholder(restored) {
		a.logger.Warn("anonymization placeholder survived restore", "request_id", requestID)
	}
	return restored
}
