// Package analyze derives structured signals from extracted text: section
// boundaries, skill candidates, and a coarse experience level. Analysis is a
// cache over the stored bytes; it degrades to an empty result rather than
// failing the ingestion that triggered it.
package analyze

import (
	"ingest-backend/internal/artifacts"
	"ingest-backend/internal/shared/telemetry"
)

// Result is the full analysis output for one text.
type Result struct {
	Sections        []string
	Skills          []artifacts.SkillCandidate
	ExperienceLevel artifacts.ExperienceLevel
}

// Analyzer runs the individual passes over extracted text.
type Analyzer struct {
	dict *SkillDictionary
}

// New builds an Analyzer. A nil dictionary falls back to the default term set.
func New(dict *SkillDictionary) *Analyzer {
	if dict == nil {
		dict = DefaultSkillDictionary()
	}
	return &Analyzer{dict: dict}
}

// Run analyzes text and never fails: a panic in any pass is logged and the
// zero-value result (unknown level, no sections, no skills) is returned.
func (a *Analyzer) Run(text string) (result Result) {
	result.ExperienceLevel = artifacts.LevelUnknown

	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("analyze.panic", map[string]any{"panic": r})
			result = Result{ExperienceLevel: artifacts.LevelUnknown}
		}
	}()

	if text == "" {
		return result
	}
	result.Sections = Sections(text)
	result.Skills = a.dict.Skills(text)
	result.ExperienceLevel = Experience(text)
	return result
}
