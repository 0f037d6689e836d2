package keywords

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// DefaultFile is the keyword file looked up when no path is configured.
const DefaultFile = "job_list.json"

// objectKeys are tried in order when the file holds an object.
var objectKeys = []string{"keywords", "jobs", "job_titles"}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Load reads a keyword file holding either a top-level string array or an
// object with a "keywords", "jobs" or "job_titles" string array.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords %q: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes keyword file contents. name is only used in error messages.
func Parse(data []byte, name string) ([]string, error) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("parse keywords %q: %w", name, err)
	}

	switch value := decoded.(type) {
	case []any:
		return stringArray(value, name, "root array")
	case map[string]any:
		for _, key := range objectKeys {
			raw, ok := value[key]
			if !ok {
				continue
			}
			list, ok := raw.([]any)
			if !ok {
				return nil, fmt.Errorf("invalid keywords %q: field %q must be an array of strings", name, key)
			}
			return stringArray(list, name, key)
		}
	}
	return nil, fmt.Errorf("invalid keywords %q: expected a string array or an object with keywords, jobs or job_titles", name)
}

func stringArray(values []any, name string, field string) ([]string, error) {
	out := make([]string, 0, len(values))
	for idx, raw := range values {
		keyword, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("invalid keywords %q: %s[%d] must be a string", name, field, idx)
		}
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		out = append(out, keyword)
	}
	return out, nil
}

// Split parses a comma-separated keyword argument.
func Split(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// Merge joins keyword lists, dropping case-insensitive duplicates while
// keeping the first spelling. limit <= 0 disables the cap.
func Merge(limit int, lists ...[]string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, list := range lists {
		for _, keyword := range list {
			keyword = strings.TrimSpace(keyword)
			if keyword == "" {
				continue
			}
			key := strings.ToLower(keyword)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, keyword)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one non-empty keyword is required")
	}
	if limit > 0 && len(out) > limit {
		return nil, fmt.Errorf("too many keywords: max %d", limit)
	}
	return out, nil
}

// Normalize lowercases s and replaces every run of non-alphanumerics with a space.
func Normalize(s string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(s), " "))
}

// MatchText reports whether keyword occurs in text, case-insensitively.
// A keyword like "ui/ux" also matches when every slash-separated part occurs.
func MatchText(text string, keyword string) bool {
	t := strings.ToLower(text)
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if strings.TrimSpace(t) == "" || kw == "" {
		return false
	}
	if strings.Contains(kw, "/") {
		if strings.Contains(t, kw) {
			return true
		}
		parts := 0
		for _, part := range strings.Split(kw, "/") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			parts++
			if !strings.Contains(t, part) {
				return false
			}
		}
		return parts > 0
	}
	return strings.Contains(t, kw)
}

// MatchAny reports whether text matches one of keywords. An empty keyword
// list matches everything.
func MatchAny(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, keyword := range keywords {
		if MatchText(text, keyword) {
			return true
		}
	}
	return false
}

// FirstMatch returns the first keyword with a token (two or more chars)
// present in the normalized fields.
func FirstMatch(keywords []string, fields ...string) (string, bool) {
	hay := Normalize(strings.Join(fields, " "))
	if hay == "" {
		return "", false
	}
	for _, keyword := range keywords {
		for _, token := range strings.Fields(Normalize(keyword)) {
			if len(token) < 2 {
				continue
			}
			if strings.Contains(hay, token) {
				return keyword, true
			}
		}
	}
	return "", false
}

// Found returns the keywords that occur in text, sorted and comma-joined.
func Found(text string, keywords []string) string {
	low := strings.ToLower(text)
	if strings.TrimSpace(low) == "" {
		return ""
	}
	set := map[string]struct{}{}
	var found []string
	for _, keyword := range keywords {
		if keyword == "" || !strings.Contains(low, strings.ToLower(keyword)) {
			continue
		}
		if _, ok := set[keyword]; ok {
			continue
		}
		set[keyword] = struct{}{}
		found = append(found, keyword)
	}
	sort.Strings(found)
	return strings.Join(found, ", ")
}
