package validate

import "ingest-backend/internal/sniff"

// Reason is the closed, stable enum of rejection codes surfaced to callers.
// The orchestration layer maps these to user-facing messages; nothing else
// ever crosses the boundary.
type Reason string

const (
	ReasonFileTooLarge         Reason = "FILE_TOO_LARGE"
	ReasonFileTooSmall         Reason = "FILE_TOO_SMALL"
	ReasonTypeMismatch         Reason = "TYPE_MISMATCH"
	ReasonUnsupportedFormat    Reason = "UNSUPPORTED_FORMAT"
	ReasonStructuralCorruption Reason = "STRUCTURAL_CORRUPTION"
	ReasonThreatDetected       Reason = "THREAT_DETECTED"
	ReasonQuotaExceeded        Reason = "QUOTA_EXCEEDED"
	ReasonScannerUnavailable   Reason = "SCANNER_UNAVAILABLE"
	ReasonStorageError         Reason = "STORAGE_ERROR"
)

// Verdict is the all-or-nothing outcome of the validator chain. A rejected
// verdict carries the first failing check; no partial progress is recorded.
type Verdict struct {
	Accepted      bool
	Reason        Reason
	FailedCheck   string
	SanitizedName string
	Format        sniff.Format
}

func accepted(name string, format sniff.Format) Verdict {
	return Verdict{Accepted: true, SanitizedName: name, Format: format}
}

func rejected(check string, reason Reason) Verdict {
	return Verdict{Accepted: false, Reason: reason, FailedCheck: check}
}
