package extract

import (
	"fmt"
	"strings"
)

// FieldValue is the extracted content of one schema field. Raw always
// holds the bound text; Text, Code, JSON and Decision are filled per the
// field's kind.
type FieldValue struct {
	Raw      string `json:"raw,omitempty"`
	Text     string `json:"text,omitempty"`
	Code     string `json:"code,omitempty"`
	JSON     any    `json:"json,omitempty"`
	Decision string `json:"decision,omitempty"`
	Present  bool   `json:"present"`
}

// Result is the outcome of one extraction. OK holds exactly when every
// required field is present, every JSON field parsed, and every decision
// field resolved to its enum.
type Result struct {
	Fields      map[string]FieldValue `json:"fields"`
	OK          bool                  `json:"ok"`
	Diagnostics []string              `json:"diagnostics,omitempty"`
}

// Field returns the value for name, or a zero value when absent.
func (r Result) Field(name string) FieldValue {
	return r.Fields[name]
}

// Extract normalizes raw text and parses it against the schema in one
// step.
func Extract(raw string, schema Schema) Result {
	return Parse(Normalize(raw, schema), schema)
}

// Parse binds the normalized message to the schema. It is total: any
// input yields a Result, never a panic or an error. Fences are segmented
// before headings are considered, so a heading inside a code body is
// body text, not structure.
func Parse(msg Normalized, schema Schema) Result {
	res := Result{
		Fields:      make(map[string]FieldValue, len(schema)),
		Diagnostics: append([]string(nil), msg.Diagnostics...),
	}

	var current *binding
	flush := func() {
		if current == nil {
			return
		}
		val, diags := current.finalize()
		res.Fields[current.spec.Name] = val
		res.Diagnostics = append(res.Diagnostics, diags...)
		current = nil
	}

	var fenceLines []string
	inFence := false
	for _, line := range strings.Split(msg.Text, "\n") {
		if isFenceDelim(line) {
			if inFence {
				inFence = false
				if current != nil {
					current.addFence(strings.Join(fenceLines, "\n"))
				}
				fenceLines = nil
			} else {
				inFence = true
				fenceLines = nil
			}
			continue
		}
		if inFence {
			fenceLines = append(fenceLines, line)
			continue
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			level := headingLevel(trimmed)
			if spec, inline, ok := schema.Match(trimmed); ok {
				flush()
				current = &binding{spec: spec, level: level, inline: inline}
				continue
			}
			if current != nil && level <= current.level {
				// Unrecognized sibling section ends the binding.
				flush()
				continue
			}
			// A deeper unmatched heading is body text.
		}
		if current != nil {
			current.addLine(line)
		}
	}
	if inFence && current != nil {
		// Normalize closes fences, but Parse stays total on raw input.
		current.addFence(strings.Join(fenceLines, "\n"))
	}
	flush()

	res.OK = true
	for _, f := range schema {
		val, bound := res.Fields[f.Name]
		if !bound {
			res.Fields[f.Name] = FieldValue{}
			if f.Required {
				res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("%s: required section missing", f.Name))
			}
		}
		switch {
		case f.Required && !val.Present:
			res.OK = false
		case val.Present && f.Kind == KindJSON && val.JSON == nil:
			res.OK = false
		case val.Present && f.Kind == KindDecision && val.Decision == "":
			res.OK = false
		}
	}
	return res
}

func headingLevel(trimmed string) int {
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	return level
}

// binding accumulates the content under one matched heading.
type binding struct {
	spec   FieldSpec
	level  int
	inline string
	lines  []string
	fences []string
}

// addLine keeps the line verbatim: indentation matters when a code field
// arrives without fences.
func (b *binding) addLine(line string) {
	b.lines = append(b.lines, line)
}

func (b *binding) firstLine() string {
	for _, l := range b.lines {
		if t := strings.TrimSpace(l); t != "" {
			return t
		}
	}
	return ""
}

func (b *binding) addFence(body string) {
	b.fences = append(b.fences, body)
}

// finalize interprets the accumulated content per the field kind.
func (b *binding) finalize() (FieldValue, []string) {
	val := FieldValue{Present: true}
	var diags []string

	var parts []string
	if b.inline != "" {
		parts = append(parts, b.inline)
	}
	if body := strings.TrimSpace(strings.Join(b.lines, "\n")); body != "" {
		parts = append(parts, body)
	}
	parts = append(parts, b.fences...)
	val.Raw = strings.Join(parts, "\n")

	switch b.spec.Kind {
	case KindCode:
		switch {
		case len(b.fences) > 0:
			val.Code = b.fences[0]
		case b.inline != "":
			val.Code = b.inline
		default:
			val.Code = trimBlankEdges(b.lines)
		}
	case KindJSON:
		candidate := b.inline
		if len(b.fences) > 0 {
			candidate = b.fences[0]
		} else if candidate == "" {
			candidate = strings.TrimSpace(strings.Join(b.lines, "\n"))
		}
		parsed, err := DecodeLenient(candidate)
		if err != nil {
			diags = append(diags, fmt.Sprintf("%s: %v", b.spec.Name, err))
		} else {
			val.JSON = parsed
		}
	case KindDecision:
		candidate := b.inline
		if candidate == "" {
			candidate = b.firstLine()
		}
		if candidate == "" && len(b.fences) > 0 {
			candidate = strings.TrimSpace(b.fences[0])
		}
		resolved, ok := matchEnum(b.spec.Enum, candidate)
		if !ok {
			diags = append(diags, fmt.Sprintf("%s: %q is not one of %s", b.spec.Name, candidate, strings.Join(b.spec.Enum, "|")))
		}
		val.Decision = resolved
	default:
		val.Text = strings.TrimSpace(val.Raw)
	}
	return val, diags
}

// trimBlankEdges joins lines dropping leading and trailing blank lines
// while keeping interior blanks and indentation intact.
func trimBlankEdges(lines []string) string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
