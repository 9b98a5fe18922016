// Package templates implements the {{identifier}} prompt template syntax.
//
// Identifiers match [A-Za-z_][A-Za-z0-9_]*. There is no escaping and no
// nesting; a "{{" that does not open a well-formed reference is treated as
// literal text. Scanning is a single pass over the input, no regex.
package templates

import (
	"strings"

	"github.com/nishiki-ai/tapestry/internal/workflow"
)

// Variables returns the distinct identifiers referenced by the template,
// in first-appearance order.
func Variables(template string) []string {
	var names []string
	seen := make(map[string]bool)
	scan(template, func(name string) string {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return "" // replacement unused
	}, false)
	return names
}

// Render substitutes every {{identifier}} in the template from vars.
// Any identifier missing from vars is a *workflow.TemplateError; taskName
// is only used to attribute the error.
func Render(taskName, template string, vars map[string]string) (string, error) {
	var missing string
	out := scan(template, func(name string) string {
		v, ok := vars[name]
		if !ok && missing == "" {
			missing = name
		}
		return v
	}, true)
	if missing != "" {
		return "", &workflow.TemplateError{TaskName: taskName, Variable: missing}
	}
	return out, nil
}

// scan walks the template once, invoking fn for each well-formed reference.
// When replace is true the reference is replaced by fn's return value and
// the rewritten string is returned.
func scan(template string, fn func(name string) string, replace bool) string {
	var b strings.Builder
	if replace {
		b.Grow(len(template))
	}
	i := 0
	for i < len(template) {
		open := strings.Index(template[i:], "{{")
		if open < 0 {
			if replace {
				b.WriteString(template[i:])
			}
			break
		}
		open += i
		if replace {
			b.WriteString(template[i:open])
		}
		name, next, ok := readRef(template, open)
		if !ok {
			// Literal "{{" with no identifier or closing braces.
			if replace {
				b.WriteString(template[open : open+2])
			}
			i = open + 2
			continue
		}
		if replace {
			b.WriteString(fn(name))
		} else {
			fn(name)
		}
		i = next
	}
	if replace {
		return b.String()
	}
	return ""
}

// readRef parses a reference starting at the "{{" at position open.
// It returns the identifier and the index just past the closing "}}".
func readRef(s string, open int) (name string, next int, ok bool) {
	j := open + 2
	start := j
	for j < len(s) && isIdent(s[j], j > start) {
		j++
	}
	if j == start || j+1 >= len(s) || s[j] != '}' || s[j+1] != '}' {
		return "", 0, false
	}
	return s[start:j], j + 2, true
}

func isIdent(c byte, notFirst bool) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		return true
	case c >= '0' && c <= '9':
		return notFirst
	default:
		return false
	}
}
