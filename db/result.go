package db

import (
	"fmt"
	"io"
	"strings"

	"github.com/nickyhof/VersionDB/ps"
)

// CommitResult describes a write. Committed is false when the write
// left the perspective unchanged and no commit was made.
type CommitResult struct {
	Transaction      ps.Transaction
	Committed        bool
	DocumentsWritten int
	DocumentsRemoved int
	ExecutionTimeSec float64
}

// formatDuration formats a duration in human-readable form
func formatDuration(secs float64) string {
	if secs < 0.001 {
		return "<1ms"
	} else if secs < 1 {
		return fmt.Sprintf("%dms", int(secs*1000))
	} else if secs < 60 {
		if secs < 10 {
			return fmt.Sprintf("%.1fs", secs)
		}
		return fmt.Sprintf("%ds", int(secs))
	}
	mins := int(secs / 60)
	remainSecs := int(secs) % 60
	if remainSecs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm%ds", mins, remainSecs)
}

func (result CommitResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

func (result CommitResult) String() string {
	var parts []string

	if result.DocumentsWritten > 0 {
		parts = append(parts, fmt.Sprintf("%d document(s) written", result.DocumentsWritten))
	}
	if result.DocumentsRemoved > 0 {
		parts = append(parts, fmt.Sprintf("%d document(s) removed", result.DocumentsRemoved))
	}
	if !result.Committed {
		parts = append(parts, "nothing to commit")
	} else {
		parts = append(parts, fmt.Sprintf("version %d", result.Transaction.Version))
	}

	return fmt.Sprintf("%s (%s)", strings.Join(parts, ", "), result.ExecutionTime())
}

// Display writes the one line summary to w.
func (result CommitResult) Display(w io.Writer) {
	fmt.Fprintln(w, result.String())
}
