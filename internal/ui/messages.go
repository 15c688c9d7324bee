package ui

import (
	"fmt"
	"io"

	"github.com/pleimann/gazeboard/internal/utils"
)

// PrintVersion writes the binary name and version
func PrintVersion(w io.Writer, version string) {
	fmt.Fprintf(w, "%s %s\n", Title(utils.ExecutableName()), SuccessStyle.Render("v"+version))
}

// PrintFatalError writes an error headline with its detail
func PrintFatalError(w io.Writer, context, message string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, Error(context))
	fmt.Fprintf(w, "  %s\n", Muted(message))
	fmt.Fprintln(w)
}

// PrintSaved confirms a file was written
func PrintSaved(w io.Writer, what, path string) {
	fmt.Fprintf(w, "%s %s\n", Success(what), Code(path))
}

// PrintCommit writes one committed selection during a headless replay
func PrintCommit(w io.Writer, target, text string) {
	fmt.Fprintf(w, "%s %q\n", Subtitle(fmt.Sprintf("%-16s", target)), text)
}
