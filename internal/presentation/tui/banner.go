package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the cadloop banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text, color string
	}{
		{"            _ _                   ", "#38bdf8"},
		{"   ___ __ _| | |___  ___  _ __    ", "#22d3ee"},
		{"  / __/ _` | | / _ \\/ _ \\| '_ \\   ", "#2dd4bf"},
		{" | (_| (_| | | (_) | (_) | |_) |  ", "#34d399"},
		{"  \\___\\__,_|_|\\___/\\___/| .__/   ", "#4ade80"},
		{"                        |_|       ", "#a3e635"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  v"+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}
