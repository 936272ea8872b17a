package ui

import (
	"fmt"

	"github.com/bamsammich/beamsum/internal/engine"
)

// CompletionSummary builds a final summary line from a batch summary.
// Format: done ✓  files 48,917  size 2.1 GiB  avg 641 MiB/s  time 3m 17s  ok 48,917  failed 0
func CompletionSummary(sum engine.Summary) string {
	avgSpeed := 0.0
	if sum.Duration.Seconds() > 0 {
		avgSpeed = float64(sum.BytesRead) / sum.Duration.Seconds()
	}

	word, icon := "done", "✓"
	switch {
	case sum.Outcome == engine.OutcomeCancelled:
		word, icon = "cancelled", "✗"
	case sum.Failure > 0:
		icon = "✗"
	}

	line := fmt.Sprintf("%s %s  files %s  size %s  avg %s  time %s  ok %s  failed %s",
		word, icon,
		FormatCount(sum.Processed()),
		FormatBytes(sum.BytesRead),
		FormatRate(avgSpeed),
		FormatDuration(sum.Duration),
		FormatCount(sum.Success),
		FormatCount(sum.Failure),
	)
	if sum.Cancelled > 0 {
		line += "  cancelled " + FormatCount(sum.Cancelled)
	}
	if sum.Excluded > 0 {
		line += "  excluded " + FormatCount(sum.Excluded)
	}
	return line
}
