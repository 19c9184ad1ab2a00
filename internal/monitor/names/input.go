package names

import (
	"regexp"
	"strings"
)

var delimiterRE = regexp.MustCompile(`[,;\n]+`)

type inputKind int

const (
	kindAbsent inputKind = iota
	kindText
	kindList
)

// Input is the raw form of a set of process names as it arrives from a
// client: either one delimited string or an explicit list.  The zero value
// means no input was given.
type Input struct {
	kind inputKind
	text string
	list []string
}

// FromText wraps a single string that may contain several names separated by
// commas, semicolons or newlines.
func FromText(s string) Input {
	return Input{kind: kindText, text: s}
}

// FromList wraps an explicit list of names.  Items are not split further.
func FromList(items []string) Input {
	return Input{kind: kindList, list: append([]string(nil), items...)}
}

// Given reports whether any input was supplied at all, even if it turns out
// to contain no usable names.
func (in Input) Given() bool {
	return in.kind != kindAbsent
}

// Candidates returns the trimmed, non-empty names in the input, in order and
// without de-duplication.
func (in Input) Candidates() []string {
	var raw []string
	switch in.kind {
	case kindText:
		raw = delimiterRE.Split(in.text, -1)
	case kindList:
		raw = in.list
	default:
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
