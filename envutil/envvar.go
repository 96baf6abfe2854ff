// Package envutil implements environment-variable interpolation and
// duration parsing for operator configuration strings.
package envutil

import (
	"os"
	"regexp"
	"strings"
)

// simpleRe matches $NAME (no braces); extendedRe matches ${NAME},
// ${NAME-default}, and ${NAME:-default}.
var (
	simpleRe   = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	extendedRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:?-)?([^}]*)?\}`)
	escapedRe  = regexp.MustCompile(`\\\$`)
)

const escapePlaceholder = "\x00ESCAPED_DOLLAR\x00"

// ExpandEnv resolves $NAME, ${NAME}, ${NAME-default}, and ${NAME:-default}
// references in s against the process environment. A leading backslash
// escapes a $, leaving it as a literal $ in the output. Expansion is
// idempotent on fully-resolved strings: a string containing no $ is
// returned unchanged.
func ExpandEnv(s string) string {
	s = escapedRe.ReplaceAllString(s, escapePlaceholder)

	s = extendedRe.ReplaceAllStringFunc(s, func(match string) string {
		m := extendedRe.FindStringSubmatch(match)
		name, op, def := m[1], m[2], m[3]
		val, ok := os.LookupEnv(name)
		switch {
		case op == ":-":
			if !ok || val == "" {
				return def
			}
			return val
		case op == "-":
			if !ok {
				return def
			}
			return val
		default:
			return val
		}
	})

	s = simpleRe.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1:]
		return os.Getenv(name)
	})

	s = strings.ReplaceAll(s, escapePlaceholder, "$")
	return s
}
