// Package marker encodes timer state into inline document spans and
// decodes them back, including legacy span formats kept for one-time
// migration.
package marker

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/sadopc/marktime/internal/timer"
)

// Decoded is a parsed marker plus the byte offsets of the exact span it
// occupies in its line, so callers can replace it without touching
// surrounding text.
type Decoded struct {
	State timer.State
	Start int
	End   int
}

// glyphs alternate on each render so a ticking timer is visibly alive
// even when the duration text stalls. Purely decorative.
var glyphs = [2]string{"⏳", "⌛"}

// Render encodes s as an inline span. The bracketed duration and glyph
// are decorative; the attributes are the authoritative fields and the
// output always re-parses via Parse.
func Render(s timer.State) string {
	return fmt.Sprintf(`<span class="%s" id="%s" data-dur="%d" data-ts="%d">[%s %s]</span>`,
		s.Status, s.ID, s.Accumulated, s.LastEvent,
		formatClock(s.Accumulated), glyphs[s.Accumulated%2])
}

// formatClock renders whole seconds as HH:MM:SS; hours run past 24.
func formatClock(secs int64) string {
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

var currentRe = regexp.MustCompile(
	`<span class="(running|paused)" id="([0-9a-zA-Z]+)" data-dur="(\d+)" data-ts="(\d+)">[^<]*</span>`)

// Parse scans line for a marker span. With a non-empty targetID only a
// span carrying that id matches; otherwise the first span wins. The
// current format is tried first, then each legacy decoder in priority
// order. A span that matches a format's shape but fails field
// extraction is treated as absent.
func Parse(line, targetID string) *Decoded {
	for _, dec := range decoders {
		if d := dec(line, targetID); d != nil {
			return d
		}
	}
	return nil
}

// decoder strategies, newest format first. Adding support for another
// historical format means appending here, not branching in Parse.
var decoders = []func(line, targetID string) *Decoded{
	decodeCurrent,
	decodeLegacyAttr,
}

func decodeCurrent(line, targetID string) *Decoded {
	for _, m := range currentRe.FindAllStringSubmatchIndex(line, -1) {
		status := line[m[2]:m[3]]
		id := line[m[4]:m[5]]
		if targetID != "" && id != targetID {
			continue
		}
		dur, err := strconv.ParseInt(line[m[6]:m[7]], 10, 64)
		if err != nil {
			continue
		}
		ts, err := strconv.ParseInt(line[m[8]:m[9]], 10, 64)
		if err != nil {
			continue
		}
		st := timer.Paused
		if status == "running" {
			st = timer.Running
		}
		return &Decoded{
			State: timer.State{ID: id, Status: st, Accumulated: dur, LastEvent: ts},
			Start: m[0],
			End:   m[1],
		}
	}
	return nil
}
