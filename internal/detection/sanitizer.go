// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package detection

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// RichTextElements are the tags kept by the rich-text policy.
var RichTextElements = []string{
	"p", "br", "b", "i", "em", "strong", "u",
	"ul", "ol", "li", "blockquote", "code", "pre",
	"h1", "h2", "h3", "h4", "h5", "h6",
}

// Sanitizer cleans untrusted HTML. Policies are safe for concurrent use
// once built.
type Sanitizer struct {
	richText  *bluemonday.Policy
	plainText *bluemonday.Policy
}

// NewSanitizer builds the rich-text allow-list policy and a strict policy
// for plain-text fields.
func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(RichTextElements...)
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnLinks(true)
	p.AllowAttrs("title").Globally()

	return &Sanitizer{
		richText:  p,
		plainText: bluemonday.StrictPolicy(),
	}
}

// Sanitize applies the rich-text policy.
func (s *Sanitizer) Sanitize(html string) string {
	return s.richText.Sanitize(html)
}

// StripTags removes all markup.
func (s *Sanitizer) StripTags(text string) string {
	return s.plainText.Sanitize(text)
}

// SanitizeFields sanitizes the named string fields of m in place and
// returns the names of the fields whose value changed. Dotted names reach
// into nested maps. Missing and non-string fields are ignored.
func (s *Sanitizer) SanitizeFields(m map[string]any, fields ...string) []string {
	var changed []string
	for _, field := range fields {
		parent, key, ok := lookupParent(m, field)
		if !ok {
			continue
		}
		str, ok := parent[key].(string)
		if !ok {
			continue
		}
		clean := s.Sanitize(str)
		if clean != str {
			parent[key] = clean
			changed = append(changed, field)
		}
	}
	return changed
}

func lookupParent(m map[string]any, path string) (map[string]any, string, bool) {
	parts := strings.Split(path, ".")
	cur := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return nil, "", false
		}
		cur = next
	}
	last := parts[len(parts)-1]
	if _, ok := cur[last]; !ok {
		return nil, "", false
	}
	return cur, last, true
}
