package marker

import "regexp"

var tagRe = regexp.MustCompile(`#(\w+)`)

// Tags returns the hashtag tokens found anywhere on line, deduplicated,
// in order of first appearance. These are the classification keys a
// flush records against the ledger.
func Tags(line string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range tagRe.FindAllStringSubmatch(line, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
