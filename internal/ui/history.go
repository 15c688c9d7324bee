package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pleimann/gazeboard/internal/history"
)

// PrintHistory writes records newest first with relative times
func PrintHistory(w io.Writer, records []history.Record, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(w, Muted("No typing history yet"))
		return
	}

	fmt.Fprintln(w, Title("Typing history"))
	for _, r := range records {
		who := "anonymous"
		if r.UserID != nil {
			who = fmt.Sprintf("user %d", *r.UserID)
		}
		meta := fmt.Sprintf("#%d · %s · %s", r.ID, who, humanize.RelTime(r.DateCreated, now, "ago", "from now"))
		fmt.Fprintf(w, "  %s\n    %s\n", Muted(meta), strings.ReplaceAll(r.Text, "\n", "\n    "))
	}
	fmt.Fprintln(w, Muted(fmt.Sprintf("%s record(s)", humanize.Comma(int64(len(records))))))
}
