// Package sanitize strips transport noise from supplier response bodies so the
// downstream parsers see one JSON payload or a single-line HTML body.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// A line fragment left behind by chunked transfer framing inside a JSON body.
	trailingChunkLine = regexp.MustCompile(`\n(.*?\n)`)
	// A line holding only a hex chunk-size marker.
	chunkSizeLine = regexp.MustCompile(`\n[0-9a-z]+(\n|\r)`)
	lineBreaks    = regexp.MustCompile(`\r\n?|\n`)
)

// TrimJSON keeps the span from the first '{' to the end of the last top-level
// object of the leading run of objects. Objects in a run may be separated by
// commas and whitespace; anything else after an object ends the run.
// A body whose braces never balance falls back to the last '}'.
func TrimJSON(body string) string {
	start := strings.IndexByte(body, '{')
	if start < 0 {
		return ""
	}

	end, ok := scanObjectRun(body, start)
	if !ok {
		last := strings.LastIndexByte(body, '}')
		if last < start {
			return body[start:]
		}
		return body[start : last+1]
	}
	return body[start:end]
}

// scanObjectRun walks body from the '{' at start, tracking depth and string
// state. It returns the exclusive end offset of the last complete object.
func scanObjectRun(body string, start int) (int, bool) {
	end := -1
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(body); i++ {
		c := body[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth == 0 {
				return end, end > 0
			}
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return end, end > 0
			}
			if depth == 0 {
				end = i + 1
				next, more := nextObjectInRun(body, end)
				if !more {
					return end, true
				}
				i = next - 1
			}
		default:
			if depth == 0 {
				return end, end > 0
			}
		}
	}
	return end, end > 0 && depth == 0
}

// nextObjectInRun reports whether another object follows offset, separated only
// by whitespace and at most one comma, and returns the offset of its '{'.
func nextObjectInRun(body string, offset int) (int, bool) {
	sawComma := false
	for i := offset; i < len(body); i++ {
		switch body[i] {
		case ' ', '\t', '\r', '\n':
		case ',':
			if sawComma {
				return 0, false
			}
			sawComma = true
		case '{':
			return i, sawComma
		default:
			return 0, false
		}
	}
	return 0, false
}

// CleanJSON trims body to its JSON payload, drops chunk-framing line fragments
// and removes carriage returns. Running it on its own output is a no-op.
func CleanJSON(body string) string {
	trimmed := TrimJSON(body)
	trimmed = trailingChunkLine.ReplaceAllString(trimmed, "")
	return strings.ReplaceAll(trimmed, "\r", "")
}

// FlattenHTML removes chunk-size marker lines and collapses every line break,
// producing a single-line body for hidden form value extraction.
func FlattenHTML(body string) string {
	flat := chunkSizeLine.ReplaceAllString(body, "")
	return lineBreaks.ReplaceAllString(flat, "")
}
