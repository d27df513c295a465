package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/aretw0/strata"
)

var (
	success = color.New(color.FgGreen, color.Bold)
	failure = color.New(color.FgRed, color.Bold)
	notice  = color.New(color.FgYellow)
	faint   = color.New(color.Faint)
)

func disableColor() {
	color.NoColor = true
}

// printReport writes the outcome of one applied file.
func printReport(w io.Writer, r strata.FileReport) {
	rep := r.Report
	if rep.Err == nil {
		fmt.Fprintf(w, "%s %s: %d locations created\n", success.Sprint("ok"), r.File, rep.Ledger.Len())
	} else {
		fmt.Fprintf(w, "%s %s\n", failure.Sprint("failed"), r.File)
		if rep.Path != "" {
			fmt.Fprintf(w, "  at   %s\n", notice.Sprint(rep.Path))
		}
		fmt.Fprintf(w, "  %s\n", rep.Err)
	}
	if rep.Ledger.Len() > 0 {
		fmt.Fprintf(w, "  %s %s\n", faint.Sprint("undo:"), rep.Undo())
	} else {
		fmt.Fprintf(w, "  %s\n", notice.Sprint("nothing to undo"))
	}
}
