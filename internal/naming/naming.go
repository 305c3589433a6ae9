// Package naming derives SQL identifiers from declared names and expands the
// small placeholder templates used by join and check expressions.
package naming

import (
	"strconv"
	"strings"
)

// CanonicalName returns the snake_case form of identifier.
//
// An uppercase letter is lowercased and, when the previous character was a
// lowercase letter or a digit, preceded by an underscore. Lowercase letters
// and digits pass through. Any other character passes through unchanged and
// suppresses the underscore before a following uppercase letter, so runs of
// capitals collapse ("ABCd" becomes "abcd") and explicit underscores are kept
// verbatim.
func CanonicalName(identifier string) string {
	var sb strings.Builder
	sb.Grow(len(identifier) + 8)
	underscore := false
	for _, r := range identifier {
		switch {
		case r >= 'A' && r <= 'Z':
			if underscore {
				sb.WriteByte('_')
				underscore = false
			}
			sb.WriteRune(r + ('a' - 'A'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			underscore = true
			sb.WriteRune(r)
		default:
			underscore = false
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Quote wraps value in double quotes. Each end is only quoted when it does
// not already carry a quote, so Quote(Quote(v)) == Quote(v).
func Quote(value string) string {
	if value == "" {
		return `""`
	}
	var sb strings.Builder
	sb.Grow(len(value) + 2)
	if value[0] != '"' {
		sb.WriteByte('"')
	}
	sb.WriteString(value)
	if len(value) == 1 || value[len(value)-1] != '"' {
		sb.WriteByte('"')
	}
	return sb.String()
}

// QuoteAll quotes every value and joins them with sep.
func QuoteAll(values []string, sep string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = Quote(v)
	}
	return strings.Join(quoted, sep)
}

// Expand substitutes positional placeholders in template.
//
//	%N$s  the N-th argument (1-based)
//	%s    the next argument in order; once the arguments are exhausted the
//	      last one repeats, so a single argument fills every %s
//	%%    a literal percent sign
//
// Anything else, including placeholders that refer past the argument list,
// is copied unchanged.
func Expand(template string, args ...string) string {
	if !strings.Contains(template, "%") {
		return template
	}
	var sb strings.Builder
	sb.Grow(len(template) + 16)
	next := 0
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '%' || i+1 >= len(template) {
			sb.WriteByte(c)
			continue
		}
		switch d := template[i+1]; {
		case d == '%':
			sb.WriteByte('%')
			i++
		case d == 's':
			if len(args) == 0 {
				sb.WriteString("%s")
			} else {
				idx := next
				if idx >= len(args) {
					idx = len(args) - 1
				}
				sb.WriteString(args[idx])
				next++
			}
			i++
		case d >= '1' && d <= '9':
			j := i + 1
			for j < len(template) && template[j] >= '0' && template[j] <= '9' {
				j++
			}
			if j+1 < len(template) && template[j] == '$' && template[j+1] == 's' {
				n, _ := strconv.Atoi(template[i+1 : j])
				if n >= 1 && n <= len(args) {
					sb.WriteString(args[n-1])
					i = j + 1
					continue
				}
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
