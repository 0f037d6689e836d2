// Package textseg splits flattened page text into labeled fields.
//
// Job detail pages render as a stream of short lines where a known label
// ("Salary", "Description", ...) is followed by its value or by a section
// that runs until the next label. A Segmenter holds the label set for one
// page layout and extracts values relative to label positions.
package textseg

import (
	"html"
	"strings"
)

// valueWindow is how many lines after a label are searched for its value.
const valueWindow = 11

// Lines splits text on newlines, collapses whitespace and drops empty lines.
func Lines(text string) []string {
	raw := strings.Split(html.UnescapeString(text), "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		line = Collapse(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Collapse trims s and joins its fields with single spaces.
func Collapse(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Segmenter knows the labels of one page layout.
type Segmenter struct {
	labels map[string]struct{}
}

// New returns a Segmenter for the given labels.
func New(labels ...string) *Segmenter {
	set := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		set[label] = struct{}{}
	}
	return &Segmenter{labels: set}
}

// IsLabel reports whether line is one of the known labels.
func (s *Segmenter) IsLabel(line string) bool {
	_, ok := s.labels[line]
	return ok
}

// Value returns the first non-label line shortly after label.
func (s *Segmenter) Value(lines []string, label string) string {
	idx := indexOf(lines, label)
	if idx < 0 {
		return ""
	}
	end := min(idx+valueWindow+1, len(lines))
	for j := idx + 1; j < end; j++ {
		if lines[j] != "" && !s.IsLabel(lines[j]) {
			return lines[j]
		}
	}
	return ""
}

// Section returns the lines after label up to the next known label,
// joined with spaces.
func (s *Segmenter) Section(lines []string, label string, extraStops ...string) string {
	idx := indexOf(lines, label)
	if idx < 0 {
		return ""
	}
	stops := toSet(extraStops)
	var buf []string
	for _, line := range lines[idx+1:] {
		if s.IsLabel(line) {
			break
		}
		if _, ok := stops[line]; ok {
			break
		}
		buf = append(buf, line)
	}
	return Collapse(strings.Join(buf, " "))
}

// Until collects distinct lines after label until a stop line, keeping only
// lines whose length falls in [minLen, maxLen].
func Until(lines []string, label string, stops []string, minLen, maxLen int) []string {
	idx := indexOf(lines, label)
	if idx < 0 {
		return nil
	}
	stopSet := toSet(stops)
	seen := map[string]struct{}{}
	var out []string
	for _, line := range lines[idx+1:] {
		if _, ok := stopSet[line]; ok {
			break
		}
		if !lengthIn(line, minLen, maxLen) {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

// After returns the first line within window lines after anchor whose length
// falls in [minLen, maxLen]. Hitting a stop line ends the search.
func After(lines []string, anchor string, window, minLen, maxLen int, stops ...string) string {
	idx := indexOf(lines, anchor)
	if idx < 0 {
		return ""
	}
	stopSet := toSet(stops)
	end := min(idx+window+1, len(lines))
	for j := idx + 1; j < end; j++ {
		if _, ok := stopSet[lines[j]]; ok {
			return ""
		}
		if lengthIn(lines[j], minLen, maxLen) {
			return lines[j]
		}
	}
	return ""
}

// Prefixed returns the trimmed remainder of the first line starting with prefix.
func Prefixed(lines []string, prefix string) string {
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}

// FirstContaining returns the first line no longer than maxLen for which
// match returns true.
func FirstContaining(lines []string, maxLen int, match func(string) bool) string {
	for _, line := range lines {
		if len(line) > maxLen {
			continue
		}
		if match(line) {
			return line
		}
	}
	return ""
}

func indexOf(lines []string, target string) int {
	if target == "" {
		return -1
	}
	for i, line := range lines {
		if line == target {
			return i
		}
	}
	return -1
}

func lengthIn(line string, minLen, maxLen int) bool {
	n := len([]rune(line))
	return n >= minLen && n <= maxLen
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}
