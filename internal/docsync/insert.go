package docsync

import "regexp"

// InsertPosition selects where a brand-new marker lands on its line.
type InsertPosition int

const (
	// InsertLineStart places the marker at the start of the line's
	// content, after any list, task, heading or quote prefix.
	InsertLineStart InsertPosition = iota
	// InsertLineEnd appends the marker at the end of the line.
	InsertLineEnd
	// InsertCursor places the marker at the caller-supplied offset.
	InsertCursor
)

// leadingPatterns are tried in order; the first match is the prefix a
// line-start insertion must not break. Task-list items come before
// plain bullets so `- [ ] ` is consumed whole.
var leadingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*[-*+] \[.\] `),
	regexp.MustCompile(`^\s*[-*+] `),
	regexp.MustCompile(`^\s*\d+[.)] `),
	regexp.MustCompile(`^#+ `),
	regexp.MustCompile(`^>\s*`),
}

// insertOffset resolves the byte offset a new marker is inserted at.
func insertOffset(line string, pos InsertPosition, cursor int) int {
	switch pos {
	case InsertLineEnd:
		return len(line)
	case InsertCursor:
		if cursor < 0 {
			return 0
		}
		if cursor > len(line) {
			return len(line)
		}
		return cursor
	default:
		for _, re := range leadingPatterns {
			if loc := re.FindStringIndex(line); loc != nil {
				return loc[1]
			}
		}
		return 0
	}
}

// padded wraps text with a single space on each side where the
// neighbouring character is not already whitespace or a line edge.
func padded(line string, at int, text string) string {
	if at > 0 && line[at-1] != ' ' && line[at-1] != '\t' {
		text = " " + text
	}
	if at < len(line) && line[at] != ' ' && line[at] != '\t' {
		text = text + " "
	}
	return text
}
