// Package statement resolves which SQL statement a cursor position refers to
// inside a multi-statement script buffer.
package statement

import "strings"

// Segment is one candidate statement span produced by the raw scan, before
// emptiness resolution. End is exclusive; the text between Start and End
// still carries its surrounding whitespace.
type Segment struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

type scanMode int

const (
	modeNone scanMode = iota
	modeSingleQuote
	modeDoubleQuote
	modeLineComment
	modeBlockComment
)

// Segments splits a script into semicolon-delimited spans in a single
// left-to-right scan. Semicolons inside string literals, quoted identifiers,
// line comments, and block comments do not split. A doubled quote inside the
// matching quoted mode is an escape. Unterminated quotes or block comments
// extend to the end of the buffer. The trailing segment is always recorded,
// even when empty, so an empty buffer yields exactly one empty segment.
func Segments(text string) []Segment {
	segments := make([]Segment, 0, 4)
	mode := modeNone
	start := 0
	i := 0
	n := len(text)

	for i < n {
		c := text[i]
		switch mode {
		case modeNone:
			switch {
			case c == '\'':
				mode = modeSingleQuote
				i++
			case c == '"':
				mode = modeDoubleQuote
				i++
			case c == '-' && i+1 < n && text[i+1] == '-':
				mode = modeLineComment
				i += 2
			case c == '/' && i+1 < n && text[i+1] == '*':
				mode = modeBlockComment
				i += 2
			case c == ';':
				segments = append(segments, Segment{Start: start, End: i, Text: text[start:i]})
				start = i + 1
				i++
			default:
				i++
			}
		case modeSingleQuote:
			if c == '\'' {
				if i+1 < n && text[i+1] == '\'' {
					i += 2
					continue
				}
				mode = modeNone
			}
			i++
		case modeDoubleQuote:
			if c == '"' {
				if i+1 < n && text[i+1] == '"' {
					i += 2
					continue
				}
				mode = modeNone
			}
			i++
		case modeLineComment:
			if c == '\n' {
				mode = modeNone
			}
			i++
		case modeBlockComment:
			if c == '*' && i+1 < n && text[i+1] == '/' {
				mode = modeNone
				i += 2
				continue
			}
			i++
		}
	}

	segments = append(segments, Segment{Start: start, End: n, Text: text[start:n]})
	return segments
}

// Locate returns the statement the user intends to run. A non-empty explicit
// selection wins and is returned trimmed, without scanning. Otherwise the
// cursor is clamped to the buffer and matched against the first segment whose
// inclusive [Start, End] span contains it; when that segment is blank, the
// nearest non-empty segment is taken, looking backward first, then forward.
// Returns "" when the whole buffer is blank.
func Locate(text string, cursor int, selection string) string {
	if trimmed := strings.TrimSpace(selection); trimmed != "" {
		return trimmed
	}

	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(text) {
		cursor = len(text)
	}

	segments := Segments(text)
	index := -1
	for i, segment := range segments {
		if segment.Start <= cursor && cursor <= segment.End {
			index = i
			break
		}
	}
	if index < 0 {
		return ""
	}

	if trimmed := strings.TrimSpace(segments[index].Text); trimmed != "" {
		return trimmed
	}
	for i := index - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(segments[i].Text); trimmed != "" {
			return trimmed
		}
	}
	for i := index + 1; i < len(segments); i++ {
		if trimmed := strings.TrimSpace(segments[i].Text); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
