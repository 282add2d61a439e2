package fhir

import (
	"html"
	"regexp"
	"strings"
)

// NarrativeStatusGenerated is the text.status of compiler-written narratives.
const NarrativeStatusGenerated = "generated"

const xhtmlDivOpen = `<div xmlns="http://www.w3.org/1999/xhtml">`

// tagPattern matches any markup tag. It is only adequate for narratives
// this package produced: a single div whose content is escaped text.
var tagPattern = regexp.MustCompile(`<[^>]*>`)

// NewNarrative wraps plain text in an XHTML div, escaping it so the result
// never contains markup other than the wrapper.
func NewNarrative(text string) *Narrative {
	var b strings.Builder
	b.WriteString(xhtmlDivOpen)
	b.WriteString(escapeHTML(text))
	b.WriteString("</div>")
	return &Narrative{
		Status: NarrativeStatusGenerated,
		Div:    b.String(),
	}
}

// NarrativeText recovers the plain text of a narrative div.
func NarrativeText(div string) string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(div, "")))
}

// textEscaper escapes only what can open markup in element content.
// Quotes are left as written.
var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string {
	return textEscaper.Replace(s)
}
