package analyze

import (
	"regexp"
	"sort"
	"strings"

	"ingest-backend/internal/artifacts"
)

// SkillDictionary matches known skill terms in tokenized text. Terms are
// matched case-insensitively on token boundaries so "go" in "golang tooling"
// does not fire on the substring of another word.
type SkillDictionary struct {
	terms map[string]string // lowercase token -> display form
}

// defaultSkillTerms covers the languages, frameworks, and tools the platform
// screens for. The display form is what clients see; lookup is lowercase.
var defaultSkillTerms = []string{
	"Go", "Golang", "Python", "Java", "JavaScript", "TypeScript", "C++", "C#",
	"Ruby", "Rust", "Kotlin", "Swift", "PHP", "Scala", "SQL",
	"React", "Angular", "Vue", "Django", "Flask", "FastAPI", "Spring",
	"Rails", "Express", "Node.js", "gRPC", "GraphQL", "REST",
	"PostgreSQL", "MySQL", "MongoDB", "Redis", "Elasticsearch", "Kafka",
	"RabbitMQ", "SQLite", "DynamoDB", "Cassandra",
	"AWS", "GCP", "Azure", "Docker", "Kubernetes", "Terraform", "Ansible",
	"Jenkins", "Git", "Linux", "CI/CD",
	"Machine Learning", "Deep Learning", "NLP", "TensorFlow", "PyTorch",
	"Pandas", "NumPy", "Spark", "Airflow",
	"Agile", "Scrum", "TDD", "Microservices",
}

// NewSkillDictionary builds a dictionary from display-form terms.
func NewSkillDictionary(terms []string) *SkillDictionary {
	d := &SkillDictionary{terms: make(map[string]string, len(terms))}
	for _, term := range terms {
		key := strings.ToLower(strings.TrimSpace(term))
		if key == "" {
			continue
		}
		d.terms[key] = strings.TrimSpace(term)
	}
	return d
}

// DefaultSkillDictionary returns the platform's built-in term list.
func DefaultSkillDictionary() *SkillDictionary {
	return NewSkillDictionary(defaultSkillTerms)
}

// tokenPattern splits on everything that cannot appear inside a skill token.
// '+', '#', '.', '/' stay so C++, C#, Node.js, and CI/CD survive tokenizing.
var tokenPattern = regexp.MustCompile(`[^A-Za-z0-9+#./]+`)

// Skills returns dictionary hits weighted by relative frequency: the most
// frequent term gets weight 1.0, the rest scale down proportionally. Output
// is sorted by weight descending, then token for determinism.
func (d *SkillDictionary) Skills(text string) []artifacts.SkillCandidate {
	counts := make(map[string]int)
	for _, tok := range tokenPattern.Split(text, -1) {
		tok = strings.Trim(tok, "./")
		if tok == "" {
			continue
		}
		if display, ok := d.terms[strings.ToLower(tok)]; ok {
			counts[display]++
		}
	}
	// Multi-word terms never survive tokenizing; match them on the raw text.
	lower := strings.ToLower(text)
	for key, display := range d.terms {
		if !strings.Contains(key, " ") {
			continue
		}
		if n := strings.Count(lower, key); n > 0 {
			counts[display] += n
		}
	}
	if len(counts) == 0 {
		return nil
	}

	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}

	out := make([]artifacts.SkillCandidate, 0, len(counts))
	for display, n := range counts {
		out = append(out, artifacts.SkillCandidate{
			Token:  display,
			Weight: float64(n) / float64(max),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Token < out[j].Token
	})
	return out
}
