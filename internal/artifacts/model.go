package artifacts

import "time"

// Category is the declared document category for an upload.
type Category string

const (
	CategoryResume         Category = "resume"
	CategoryJobDescription Category = "job_description"
	CategoryText           Category = "text"
)

// ParseCategory validates a client-supplied category string.
func ParseCategory(raw string) (Category, bool) {
	switch Category(raw) {
	case CategoryResume, CategoryJobDescription, CategoryText:
		return Category(raw), true
	default:
		return "", false
	}
}

// Status is a document's lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// ScanStatus records the quarantine verdict attached to a stored version.
type ScanStatus string

const (
	ScanClean         ScanStatus = "clean"
	ScanPendingRescan ScanStatus = "pending_rescan"
)

// ExtractionStatus marks whether derived content for a version is usable.
type ExtractionStatus string

const (
	ExtractionPending ExtractionStatus = "pending"
	ExtractionOK      ExtractionStatus = "ok"
	ExtractionFailed  ExtractionStatus = "failed"
)

// Document is one versioned lineage owned by a user, identified by the
// (owner, category, logical name) key.
type Document struct {
	ID             string
	OwnerID        string
	Category       Category
	LogicalName    string
	CurrentVersion int
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DocumentVersion is immutable once written. Versions are append-only;
// deleting a document changes its status, never its history.
type DocumentVersion struct {
	DocumentID       string
	Version          int
	SizeBytes        int64
	DetectedMIME     string
	ContentHash      string
	TextLength       int
	ScanStatus       ScanStatus
	ExtractionStatus ExtractionStatus
	StorageKey       string
	CreatedAt        time.Time
}

// SkillCandidate is a dictionary hit with a frequency-derived weight.
type SkillCandidate struct {
	Token  string  `json:"token"`
	Weight float64 `json:"weight"`
}

// ExperienceLevel is the coarse classification derived from extracted text.
type ExperienceLevel string

const (
	LevelJunior  ExperienceLevel = "junior"
	LevelMid     ExperienceLevel = "mid"
	LevelSenior  ExperienceLevel = "senior"
	LevelUnknown ExperienceLevel = "unknown"
)

// ExtractedContent is derived from a version's stored bytes. It is a cache:
// it can always be recomputed, and extraction failure never invalidates the
// stored version itself.
type ExtractedContent struct {
	DocumentID      string
	Version         int
	Status          ExtractionStatus
	Text            string
	TextKey         string
	PageCount       int
	Sections        []string
	Skills          []SkillCandidate
	ExperienceLevel ExperienceLevel
	CreatedAt       time.Time
}
