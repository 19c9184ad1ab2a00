package utils

import (
	"strings"
)

// IndentLines indents every non-empty line of ss by spaces.
func IndentLines(ss string, spaces int) string {
	var out []string
	prefix := strings.Repeat(" ", spaces)
	for _, s := range strings.Split(ss, "\n") {
		if s == "" {
			out = append(out, s)
			continue
		}
		out = append(out, prefix+s)
	}
	return strings.Join(out, "\n")
}

// StripIndent removes the indentation of the first non-blank line from every
// line of s, and drops leading blank lines.  Useful for multi-line string
// literals in indented code.
func StripIndent(s string) string {
	lines := strings.Split(s, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) == 0 {
		return ""
	}

	indent := lines[0][:len(lines[0])-len(strings.TrimLeft(lines[0], " \t"))]
	for i := range lines {
		lines[i] = strings.TrimPrefix(lines[i], indent)
	}
	return strings.Join(lines, "\n")
}
