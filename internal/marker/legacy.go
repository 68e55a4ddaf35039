package marker

import (
	"regexp"
	"strconv"

	"github.com/sadopc/marktime/internal/timer"
)

// Legacy span format, decode-only. Older documents carry
//
//	<span timer-id="12345" status="Running" acc="99" start="500">…</span>
//
// with a numeric id. The id is mapped into the current id space with
// the same base-62 encoding used for fresh ids, so the same legacy
// marker always decodes to the same id.
var legacyAttrRe = regexp.MustCompile(
	`<span timer-id="(\d+)" status="(\w+)" acc="(\d+)" start="(\d+)">[^<]*</span>`)

func decodeLegacyAttr(line, targetID string) *Decoded {
	for _, m := range legacyAttrRe.FindAllStringSubmatchIndex(line, -1) {
		numeric, err := strconv.ParseInt(line[m[2]:m[3]], 10, 64)
		if err != nil {
			continue
		}
		id := Base62(numeric)
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
		if line[m[4]:m[5]] == "Running" {
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
