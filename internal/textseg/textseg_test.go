package textseg

import (
	"reflect"
	"strings"
	"testing"
)

var page = strings.Join([]string{
	"  Backend Developer  ",
	"Acme   Soft",
	"Updated: 01/15/2025",
	"Work style",
	"",
	"Remote",
	"Salary",
	"Negotiable",
	"Work experience",
	"1-3 years",
	"Employment type",
	"Full time",
	"Description",
	"We build payment",
	"systems.",
	"Tasks",
	"Write Go services",
	"Required Skills",
	"Go",
	"PostgreSQL",
	"Go",
	"X",
	"Address:",
	"Tashkent",
}, "\n")

var layout = New(
	"Work style", "Salary", "Work experience", "Employment type",
	"Description", "Tasks", "Schedule", "Required Skills", "Additional requirements",
)

func TestLines(t *testing.T) {
	lines := Lines("  a  b \n\n\t\n c  d &amp; e ")
	want := []string{"a b", "c d & e"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("Lines() = %q, want %q", lines, want)
	}
}

func TestValue(t *testing.T) {
	lines := Lines(page)
	cases := map[string]string{
		"Work style":      "Remote",
		"Salary":          "Negotiable",
		"Work experience": "1-3 years",
		"Employment type": "Full time",
		"Schedule":        "",
	}
	for label, want := range cases {
		if got := layout.Value(lines, label); got != want {
			t.Fatalf("Value(%q) = %q, want %q", label, got, want)
		}
	}
}

func TestValueSkipsLabels(t *testing.T) {
	lines := []string{"Salary", "Work style", "Hybrid"}
	if got := layout.Value(lines, "Salary"); got != "Hybrid" {
		t.Fatalf("Value() = %q, want Hybrid", got)
	}
}

func TestSection(t *testing.T) {
	lines := Lines(page)
	if got := layout.Section(lines, "Description"); got != "We build payment systems." {
		t.Fatalf("Section(Description) = %q", got)
	}
	if got := layout.Section(lines, "Tasks"); got != "Write Go services" {
		t.Fatalf("Section(Tasks) = %q", got)
	}
	if got := layout.Section(lines, "Missing"); got != "" {
		t.Fatalf("Section(Missing) = %q", got)
	}
}

func TestUntil(t *testing.T) {
	lines := Lines(page)
	got := Until(lines, "Required Skills", []string{"Address:", "Phone:"}, 2, 80)
	want := []string{"Go", "PostgreSQL"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Until() = %q, want %q", got, want)
	}
}

func TestAfterAndPrefixed(t *testing.T) {
	lines := Lines(page)
	if got := After(lines, "Backend Developer", 14, 2, 80, "Company Name"); got != "Acme Soft" {
		t.Fatalf("After() = %q", got)
	}
	if got := After(lines, "Backend Developer", 14, 2, 80, "Acme Soft"); got != "" {
		t.Fatalf("After() with stop = %q", got)
	}
	if got := Prefixed(lines, "Updated:"); got != "01/15/2025" {
		t.Fatalf("Prefixed() = %q", got)
	}
}

func TestFirstContaining(t *testing.T) {
	lines := []string{"A very long line that mentions Remote work many times over", "Remote - EU"}
	got := FirstContaining(lines, 20, func(s string) bool { return strings.Contains(s, "Remote") })
	if got != "Remote - EU" {
		t.Fatalf("FirstContaining() = %q", got)
	}
}

func TestEmptyInput(t *testing.T) {
	if got := Lines(""); len(got) != 0 {
		t.Fatalf("Lines(\"\") = %q", got)
	}
	if layout.Value(nil, "Salary") != "" || layout.Section(nil, "Salary") != "" {
		t.Fatalf("expected empty results on nil input")
	}
	if Until(nil, "x", nil, 0, 10) != nil || After(nil, "x", 3, 0, 10) != "" || Prefixed(nil, "x") != "" {
		t.Fatalf("expected empty results on nil input")
	}
}
