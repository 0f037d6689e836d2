package normalize

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// DefaultSkillVocabulary is the skill list mined from free-text descriptions
// when a site exposes no structured skills.
var DefaultSkillVocabulary = []string{
	"python", "java", "javascript", "typescript", "react", "react native",
	"node", "django", "flask", "fastapi", "sql", "postgres", "mysql",
	"mongodb", "redis", "aws", "azure", "gcp", "docker", "kubernetes",
}

var (
	postedTailRe  = regexp.MustCompile(`(?i)\s*posted\s+(on\b|\d).*$`)
	fullTimeRe    = regexp.MustCompile(`(?i)\bfull[\s-]?time\b`)
	partTimeRe    = regexp.MustCompile(`(?i)\bpart[\s-]?time\b`)
	contractRe    = regexp.MustCompile(`(?i)\b(contract|contractor|freelance|temporary)\b`)
	internshipRe  = regexp.MustCompile(`(?i)\b(intern|internship|trainee)\b`)
	phdRe         = regexp.MustCompile(`(?i)\b(ph\.?\s?d|doctorate)\b`)
	masterRe      = regexp.MustCompile(`(?i)\b(master'?s?|msc|m\.sc|mba)\b`)
	bachelorRe    = regexp.MustCompile(`(?i)\b(bachelor'?s?|bsc|b\.sc|undergraduate)\b`)
	degreeRe      = regexp.MustCompile(`(?i)\bdegree\b`)
	locationTrims = " ,;|-·•\t"
)

// Location tidies a location line. Trailing "Posted on ..." or "Posted 3 days
// ago" fragments that some cards glue onto the location are removed.
func Location(raw string) string {
	s := collapse(strings.ReplaceAll(raw, "\u00a0", " "))
	s = postedTailRe.ReplaceAllString(s, "")
	s = strings.Trim(s, locationTrims)
	if !strings.ContainsFunc(s, unicode.IsLetter) {
		return ""
	}
	return s
}

// JobType maps employment wording to Full-time, Part-time, Contract or
// Internship.
func JobType(text string) string {
	switch {
	case fullTimeRe.MatchString(text):
		return "Full-time"
	case partTimeRe.MatchString(text):
		return "Part-time"
	case contractRe.MatchString(text):
		return "Contract"
	case internshipRe.MatchString(text):
		return "Internship"
	}
	return ""
}

// Education returns the highest degree mentioned in text.
func Education(text string) string {
	switch {
	case phdRe.MatchString(text):
		return "PhD"
	case masterRe.MatchString(text):
		return "Master"
	case bachelorRe.MatchString(text):
		return "Bachelor"
	case degreeRe.MatchString(text):
		return "Degree required"
	}
	return ""
}

// Skills returns the vocabulary terms that occur in text as whole words,
// sorted and comma-joined.
func Skills(text string, vocabulary []string) string {
	low := strings.ToLower(text)
	if strings.TrimSpace(low) == "" {
		return ""
	}
	seen := map[string]struct{}{}
	var found []string
	for _, term := range vocabulary {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		if containsWord(low, term) {
			seen[term] = struct{}{}
			found = append(found, term)
		}
	}
	sort.Strings(found)
	return strings.Join(found, ", ")
}

func containsWord(text, word string) bool {
	from := 0
	for {
		idx := strings.Index(text[from:], word)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(word)
		if boundary(text, start-1) && boundary(text, end) {
			return true
		}
		from = start + 1
	}
}

func boundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_')
}
