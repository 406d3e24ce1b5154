// Package extract recovers structured fields from malformed LLM output.
//
// Agents are asked to reply in markdown sections ("## Content:", "##
// Metadata: {...}"). Models routinely wrap the whole reply in a markdown
// fence, leave code fences unclosed, or drop sections. This package first
// normalizes the raw text (Normalize) and then binds headings to schema
// fields (Parse). Both steps are total: they never fail, they degrade into
// diagnostics.
package extract

import (
	"strings"
	"unicode"
)

// Kind classifies how a field's bound content is interpreted.
type Kind string

const (
	KindText     Kind = "text"
	KindCode     Kind = "code"
	KindJSON     Kind = "json"
	KindDecision Kind = "decision"
)

// FieldSpec describes one expected section of an agent response.
type FieldSpec struct {
	Name     string
	Kind     Kind
	Required bool
	// Enum lists the allowed values for decision fields, in canonical
	// spelling. Matching is case-insensitive.
	Enum []string
}

// Schema is the ordered field list for one agent role.
type Schema []FieldSpec

// Match resolves a stripped heading text to a schema field. The match is
// greedy: the field whose name is the longest case-insensitive prefix of
// the heading wins, and the tail after the name (minus separator
// punctuation) is returned as the inline value. "Target: SOURCE" resolves
// to field Target with inline value SOURCE.
func (s Schema) Match(heading string) (FieldSpec, string, bool) {
	text := stripHeading(heading)
	var best FieldSpec
	bestLen := -1
	for _, f := range s {
		n := len(f.Name)
		if n == 0 || n > len(text) {
			continue
		}
		if !strings.EqualFold(text[:n], f.Name) {
			continue
		}
		// The name must not continue into a longer word: "Contents"
		// is not a match for "Content".
		if rest := text[n:]; rest != "" && isWordByte(rest[0]) {
			continue
		}
		if n > bestLen {
			best, bestLen = f, n
		}
	}
	if bestLen < 0 {
		return FieldSpec{}, "", false
	}
	return best, inlineValue(text[bestLen:]), true
}

// stripHeading removes the leading '#' run, whitespace, and emphasis
// symbols from a heading line, leaving the bare section title.
func stripHeading(line string) string {
	return strings.TrimLeftFunc(line, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// inlineValue cleans the heading tail into the inline value: closing
// emphasis marks, one separator colon, and surrounding space are dropped.
func inlineValue(rest string) string {
	v := strings.TrimSpace(rest)
	v = strings.TrimLeft(v, "*_`")
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, ":")
	return strings.TrimSpace(v)
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

// matchEnum resolves a candidate decision value against the enum,
// case-insensitively, returning the canonical spelling.
func matchEnum(enum []string, candidate string) (string, bool) {
	c := strings.TrimSpace(candidate)
	c = strings.Trim(c, "*_`\"'")
	for _, e := range enum {
		if strings.EqualFold(e, c) {
			return e, true
		}
	}
	return "", false
}
