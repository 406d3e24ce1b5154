package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// DecodeLenient parses JSON the way models write it: strict JSON is
// accepted as-is, otherwise single-quoted strings are rewritten and
// trailing commas dropped before a second attempt.
func DecodeLenient(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty json value")
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v, nil
	}
	var repaired any
	if err := json.Unmarshal([]byte(repairJSON(s)), &repaired); err != nil {
		return nil, fmt.Errorf("lenient json: %w", err)
	}
	return repaired, nil
}

// repairJSON rewrites single-quote string delimiters to double quotes and
// removes trailing commas before closing brackets. String contents are
// left untouched.
func repairJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	inDouble, inSingle, escaped := false, false, false
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case escaped:
			b.WriteRune(c)
			escaped = false
		case inDouble:
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inDouble = false
			}
			b.WriteRune(c)
		case inSingle:
			switch c {
			case '\\':
				if i+1 < len(runes) && runes[i+1] == '\'' {
					b.WriteRune('\'')
					i++
				} else {
					b.WriteRune(c)
					escaped = true
				}
			case '\'':
				inSingle = false
				b.WriteRune('"')
			case '"':
				b.WriteString(`\"`)
			default:
				b.WriteRune(c)
			}
		case c == '"':
			inDouble = true
			b.WriteRune(c)
		case c == '\'':
			inSingle = true
			b.WriteRune('"')
		case c == ',':
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			if j < len(runes) && (runes[j] == '}' || runes[j] == ']') {
				continue
			}
			b.WriteRune(c)
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
