// Package cleaner strips untrusted HTML from scraped descriptions.
package cleaner

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Cleaner sanitizes HTML with a bluemonday policy.
type Cleaner struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// New returns a Cleaner that keeps basic formatting and http(s) links.
func New() *Cleaner {
	policy := bluemonday.NewPolicy()
	policy.AllowElements("p", "br", "div", "span")
	policy.AllowElements("strong", "b", "em", "i", "u")
	policy.AllowElements("ul", "ol", "li")
	policy.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	policy.AllowAttrs("href").OnElements("a")
	policy.AllowRelativeURLs(true)
	policy.RequireParseableURLs(true)
	policy.AllowURLSchemes("http", "https", "mailto")

	strict := bluemonday.StrictPolicy()
	strict.AddSpaceWhenStrippingTag(true)

	return &Cleaner{policy: policy, strict: strict}
}

// Clean returns the safe HTML subset of s.
func (c *Cleaner) Clean(s string) string {
	return c.policy.Sanitize(s)
}

// CleanToText removes every tag and returns unescaped text with whitespace
// collapsed to single spaces.
func (c *Cleaner) CleanToText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	text := html.UnescapeString(c.strict.Sanitize(s))
	text = strings.ReplaceAll(text, "\u00a0", " ")
	return strings.Join(strings.Fields(text), " ")
}
