package analyze

import "strings"

// canonical section headings recognized in resumes and job descriptions.
// Matching is case-insensitive against whole lines so body text mentioning
// "experience" does not create a section.
var sectionHeadings = map[string]string{
	"summary":                  "summary",
	"professional summary":     "summary",
	"objective":                "summary",
	"profile":                  "summary",
	"experience":               "experience",
	"work experience":          "experience",
	"professional experience":  "experience",
	"employment history":       "experience",
	"education":                "education",
	"academic background":      "education",
	"skills":                   "skills",
	"technical skills":         "skills",
	"core competencies":        "skills",
	"projects":                 "projects",
	"certifications":           "certifications",
	"licenses & certifications": "certifications",
	"publications":             "publications",
	"responsibilities":         "responsibilities",
	"requirements":             "requirements",
	"qualifications":           "requirements",
	"benefits":                 "benefits",
	"about us":                 "about",
	"about the role":           "about",
}

// Sections scans text line by line for recognized headings and returns the
// canonical section names in document order, deduplicated.
func Sections(text string) []string {
	var out []string
	seen := make(map[string]struct{})

	for _, line := range strings.Split(text, "\n") {
		candidate := normalizeHeading(line)
		if candidate == "" {
			continue
		}
		canonical, ok := sectionHeadings[candidate]
		if !ok {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

// normalizeHeading lowercases and strips decoration from a line; a line too
// long to be a heading returns empty.
func normalizeHeading(line string) string {
	line = strings.TrimSpace(line)
	line = strings.Trim(line, ":-–—*#=_ \t")
	if line == "" || len(line) > 40 {
		return ""
	}
	return strings.ToLower(strings.Join(strings.Fields(line), " "))
}
