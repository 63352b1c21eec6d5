package migration

import "strings"

// SplitStatements splits a migration script on its top-level semicolons.
// Separators inside quoted strings, line comments and block comments are
// ignored. Empty fragments are dropped.
func SplitStatements(script string) []string {
	var statements []string
	var current strings.Builder

	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case ch == ';':
				statements = appendStatement(statements, current.String())
				current.Reset()
				continue
			case ch == '\'':
				state = stateSingleQuote
			case ch == '"':
				state = stateDoubleQuote
			case ch == '-' && next == '-':
				state = stateLineComment
			case ch == '/' && next == '*':
				state = stateBlockComment
			}
		case stateSingleQuote:
			if ch == '\'' {
				// '' escapes a quote inside the literal
				if next == '\'' {
					current.WriteRune(ch)
					i++
					ch = runes[i]
				} else {
					state = stateNormal
				}
			}
		case stateDoubleQuote:
			if ch == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if ch == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if ch == '*' && next == '/' {
				current.WriteRune(ch)
				i++
				ch = runes[i]
				state = stateNormal
			}
		}

		current.WriteRune(ch)
	}

	return appendStatement(statements, current.String())
}

func appendStatement(statements []string, fragment string) []string {
	trimmed := strings.TrimSpace(fragment)
	if trimmed == "" || isOnlyComments(trimmed) {
		return statements
	}
	return append(statements, trimmed)
}

func isOnlyComments(fragment string) bool {
	for _, line := range strings.Split(fragment, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return false
	}
	return true
}
