package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sadopc/marktime/internal/ledger"
)

// ToCSV writes one row per ledger entry to path. Tags are joined with
// spaces inside one column.
func ToCSV(entries []ledger.Entry, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	// Header
	if err := w.Write([]string{"Timestamp", "Duration (s)", "Duration", "File", "Tags", "Type"}); err != nil {
		return err
	}

	for _, e := range entries {
		row := []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			fmt.Sprintf("%d", e.Duration),
			formatDuration(e.Duration),
			e.File,
			strings.Join(e.Tags, " "),
			e.Kind,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Error()
}

func formatDuration(secs int64) string {
	sign := ""
	if secs < 0 {
		sign = "-"
		secs = -secs
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, s)
}
