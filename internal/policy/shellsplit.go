package policy

import (
	"fmt"
	"strings"
)

// SplitCommand tokenizes cmdStr the way POSIX sh -c would word-split a
// command line with no variable expansion, no globbing, and no command
// substitution: single quotes preserve everything literally, double quotes
// preserve everything except backslash-escapes of \, $, ", and newline, and
// an unquoted backslash escapes the following character. This never invokes
// an actual shell (ground on the teacher's Spec.BuildCommand/
// parseExplicitShell in internal/process/spec.go, generalized here into a
// full tokenizer because §9 of the spec requires quote-correct splitting
// rather than shell delegation).
func SplitCommand(cmdStr string) ([]string, error) {
	var (
		tokens    []string
		cur       strings.Builder
		haveToken bool
	)
	const (
		stateNone = iota
		stateSingle
		stateDouble
	)
	state := stateNone
	runes := []rune(cmdStr)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch state {
		case stateSingle:
			if c == '\'' {
				state = stateNone
				continue
			}
			cur.WriteRune(c)
		case stateDouble:
			switch c {
			case '"':
				state = stateNone
			case '\\':
				if i+1 < len(runes) && isDoubleQuoteEscapable(runes[i+1]) {
					i++
					cur.WriteRune(runes[i])
				} else {
					cur.WriteRune(c)
				}
			default:
				cur.WriteRune(c)
			}
		default: // stateNone
			switch {
			case c == '\'':
				state = stateSingle
				haveToken = true
			case c == '"':
				state = stateDouble
				haveToken = true
			case c == '\\':
				if i+1 < len(runes) {
					i++
					cur.WriteRune(runes[i])
					haveToken = true
				}
			case isSpace(c):
				if haveToken {
					tokens = append(tokens, cur.String())
					cur.Reset()
					haveToken = false
				}
			default:
				cur.WriteRune(c)
				haveToken = true
			}
		}
	}
	if state != stateNone {
		return nil, fmt.Errorf("unterminated quote in command %q", cmdStr)
	}
	if haveToken {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

func isDoubleQuoteEscapable(c rune) bool {
	switch c {
	case '\\', '$', '"', '\n':
		return true
	default:
		return false
	}
}

func isSpace(c rune) bool {
	switch c {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}
