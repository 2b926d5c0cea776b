package analyze

import (
	"regexp"
	"strconv"
	"strings"

	"ingest-backend/internal/artifacts"
)

// yearsPattern catches explicit statements like "5 years", "7+ years of
// experience", "over 10 yrs".
var yearsPattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s*\+?\s*(?:years?|yrs?)\b`)

var seniorKeywords = []string{
	"senior", "staff engineer", "principal", "lead", "architect",
	"head of", "director", "vp of",
}

var juniorKeywords = []string{
	"junior", "entry level", "entry-level", "intern", "internship",
	"graduate", "recent graduate", "trainee",
}

// Experience classifies text as junior, mid, or senior. Explicit year counts
// win: <2 junior, 2-4 mid, >=5 senior. Otherwise keyword votes decide, and a
// tie between junior and senior signals yields unknown rather than a guess.
func Experience(text string) artifacts.ExperienceLevel {
	if years, ok := maxYears(text); ok {
		switch {
		case years < 2:
			return artifacts.LevelJunior
		case years < 5:
			return artifacts.LevelMid
		default:
			return artifacts.LevelSenior
		}
	}

	lower := strings.ToLower(text)
	seniorVotes := countAny(lower, seniorKeywords)
	juniorVotes := countAny(lower, juniorKeywords)

	switch {
	case seniorVotes > juniorVotes:
		return artifacts.LevelSenior
	case juniorVotes > seniorVotes:
		return artifacts.LevelJunior
	case juniorVotes > 0:
		// Equal non-zero votes contradict each other.
		return artifacts.LevelUnknown
	default:
		return artifacts.LevelUnknown
	}
}

// maxYears returns the largest explicit year count mentioned, capped at 60 to
// ignore figures that are clearly not a career length.
func maxYears(text string) (int, bool) {
	matches := yearsPattern.FindAllStringSubmatch(text, -1)
	best, found := 0, false
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n > 60 {
			continue
		}
		found = true
		if n > best {
			best = n
		}
	}
	return best, found
}

func countAny(haystack string, needles []string) int {
	total := 0
	for _, n := range needles {
		total += strings.Count(haystack, n)
	}
	return total
}
