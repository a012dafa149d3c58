package engine

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	numberShorthand = regexp.MustCompile(`^(-?\d[\d_]*)(\.\d[\d_]*)?(i32|i64|f32|f64)$`)
	accessShorthand = regexp.MustCompile(`^([lg])(=?)(\$.*)$`)
)

// Expand rewrites a shorthand token into the instruction it abbreviates:
//
//	5i32     (i32.const 5)
//	1_000i64 (i64.const 1000)
//	1.5f32   (f32.const 1.5)
//	l$x      (local.get $x)
//	l=$x     (local.set $x)
//	g$x      (global.get $x)
//	g=$x     (global.set $x)
//
// Integer types take no fractional part.
func Expand(token string) (string, bool) {
	if m := numberShorthand.FindStringSubmatch(token); m != nil {
		if m[2] != "" && m[3][0] == 'i' {
			return "", false
		}
		value := strings.ReplaceAll(m[1]+m[2], "_", "")
		return fmt.Sprintf("(%s.const %s)", m[3], value), true
	}
	if m := accessShorthand.FindStringSubmatch(token); m != nil {
		if m[3] == "$" || !ValidName(m[3]) {
			return "", false
		}
		space := "local"
		if m[1] == "g" {
			space = "global"
		}
		op := "get"
		if m[2] == "=" {
			op = "set"
		}
		return fmt.Sprintf("(%s.%s %s)", space, op, m[3]), true
	}
	return "", false
}

// isNumberShorthand reports whether token is a (possibly unfinished)
// numeric expansion.
func isNumberShorthand(token string) bool {
	return numberShorthand.MatchString(token)
}

// accessPrefix splits an access shorthand such as "l=$ab" into its prefix
// "l=" and the partially typed name "$ab".
func accessPrefix(token string) (prefix, name string, ok bool) {
	m := accessShorthand.FindStringSubmatch(token)
	if m == nil {
		return "", "", false
	}
	return m[1] + m[2], m[3], true
}

// snippetEscape escapes text so it is inserted literally by snippet-aware
// clients.
func snippetEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `$`, `\$`, `}`, `\}`)
	return r.Replace(s)
}
