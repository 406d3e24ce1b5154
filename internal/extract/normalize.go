package extract

import (
	"fmt"
	"strings"
)

// Normalized is the repaired form of a raw agent message. Diagnostics
// record every repair that was applied; an empty list means the input was
// already well formed.
type Normalized struct {
	Text        string
	Diagnostics []string
}

// Normalize repairs a raw agent message so the parser can segment it:
// outer wrapper fences are peeled, an odd fence count is completed with a
// trailing delimiter, and required JSON sections with no heading at all
// get an empty stub appended. Normalize never fails and is idempotent:
// normalizing its own output changes nothing.
func Normalize(raw string, schema Schema) Normalized {
	n := Normalized{Text: raw}

	// Peeling can expose a new wrapper and completion can close one, so
	// repairs loop to a fixpoint. Each peel removes two delimiter lines
	// and completion only fires on an odd count, so this terminates.
	for {
		changed := false
		if text, why, ok := peelWrapper(n.Text); ok {
			n.Text = text
			n.Diagnostics = append(n.Diagnostics, why)
			changed = true
		}
		if countFenceDelims(n.Text)%2 == 1 {
			n.Text = strings.TrimRight(n.Text, "\n") + "\n```"
			n.Diagnostics = append(n.Diagnostics, "unclosed fence: appended closing delimiter")
			changed = true
		}
		if !changed {
			break
		}
	}

	for _, f := range schema {
		if !f.Required || f.Kind != KindJSON {
			continue
		}
		if hasHeadingFor(n.Text, schema, f.Name) {
			continue
		}
		n.Text = strings.TrimRight(n.Text, "\n") + fmt.Sprintf("\n## %s: {}", f.Name)
		n.Diagnostics = append(n.Diagnostics, fmt.Sprintf("missing %s section: appended empty stub", f.Name))
	}

	return n
}

// peelWrapper strips one outer fence pair when the message as a whole is
// wrapped in a markdown fence. Three signals identify a wrapper: the
// opening delimiter is tagged markdown, the opening delimiter is bare and
// the interior holds no fences at all, or pairing the fences as written
// would make a language-tagged delimiter act as a closer (a closing
// delimiter never carries an info string).
func peelWrapper(text string) (string, string, bool) {
	lines := strings.Split(text, "\n")
	first, last := -1, -1
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 || first == last {
		return "", "", false
	}
	if !isFenceDelim(lines[first]) || !isFenceDelim(lines[last]) {
		return "", "", false
	}

	peel := false
	info := strings.ToLower(fenceInfo(lines[first]))
	switch {
	case info == "markdown" || info == "md":
		peel = true
	case info == "" && !hasFenceDelim(lines[first+1:last]):
		// A real code fence carries a language tag; a bare fence around
		// fence-free text can only be a wrapper hiding the headings.
		peel = true
	default:
		open := false
		for _, l := range lines[first : last+1] {
			if !isFenceDelim(l) {
				continue
			}
			if open && fenceInfo(l) != "" {
				peel = true
				break
			}
			open = !open
		}
	}
	if !peel {
		return "", "", false
	}

	inner := append([]string{}, lines[first+1:last]...)
	return strings.Join(inner, "\n"), "peeled outer fence wrapper", true
}

func isFenceDelim(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

func hasFenceDelim(lines []string) bool {
	for _, l := range lines {
		if isFenceDelim(l) {
			return true
		}
	}
	return false
}

// fenceInfo returns the info string of a fence delimiter line ("python"
// for "```python", "" for a bare delimiter).
func fenceInfo(line string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "`"))
}

func countFenceDelims(text string) int {
	count := 0
	for _, l := range strings.Split(text, "\n") {
		if isFenceDelim(l) {
			count++
		}
	}
	return count
}

// hasHeadingFor reports whether any heading line outside a fence resolves
// to the named field.
func hasHeadingFor(text string, schema Schema, name string) bool {
	inFence := false
	for _, l := range strings.Split(text, "\n") {
		if isFenceDelim(l) {
			inFence = !inFence
			continue
		}
		if inFence || !strings.HasPrefix(strings.TrimSpace(l), "#") {
			continue
		}
		if f, _, ok := schema.Match(l); ok && f.Name == name {
			return true
		}
	}
	return false
}
