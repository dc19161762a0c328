package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/cadloop/pkg/domain"
)

// Summary is what a CLI run prints after executing a script.
type Summary struct {
	Report       domain.ExecutionReport     `json:"report"`
	Measurement  *domain.Measurement        `json:"measurement,omitempty"`
	Printability *domain.PrintabilityReport `json:"printability,omitempty"`
	// Files written by the run, in order.
	Files []string `json:"files,omitempty"`
}

// Markdown renders s as a markdown document.
func (s Summary) Markdown() string {
	var b strings.Builder
	r := s.Report

	fmt.Fprintf(&b, "# %s\n\n", r.Model)
	if !r.Success {
		fmt.Fprintf(&b, "**Failed** with `%s` after %d ms.\n\n", r.ErrorKind, r.DurationMS)
		fmt.Fprintf(&b, "```\n%s\n```\n", strings.TrimSpace(r.Error))
		writeOutput(&b, r.Output)
		return b.String()
	}

	fmt.Fprintf(&b, "**OK** in %d ms.\n\n", r.DurationMS)
	if m := s.Measurement; m != nil {
		b.WriteString("| Measure | Value |\n|---|---|\n")
		fmt.Fprintf(&b, "| Size | %.2f × %.2f × %.2f mm |\n", m.Width, m.Depth, m.Height)
		fmt.Fprintf(&b, "| Volume | %.2f mm³ |\n", m.Volume)
		fmt.Fprintf(&b, "| Surface area | %.2f mm² |\n", m.SurfaceArea)
		fmt.Fprintf(&b, "| Center of mass | (%.2f, %.2f, %.2f) |\n", m.CenterOfMass.X, m.CenterOfMass.Y, m.CenterOfMass.Z)
		fmt.Fprintf(&b, "| Parts | %d |\n", m.Parts)
		fmt.Fprintf(&b, "| Triangles | %d |\n\n", m.Triangles)
	} else if r.Summary != nil {
		sz := r.Summary.BoundingBox.Size()
		fmt.Fprintf(&b, "Volume %.2f mm³, size %.2f × %.2f × %.2f mm.\n\n", r.Summary.Volume, sz.X, sz.Y, sz.Z)
	}

	if p := s.Printability; p != nil {
		verdict := "printable"
		if !p.Printable {
			verdict = "not printable"
		}
		fmt.Fprintf(&b, "## Printability: %s\n\n", verdict)
		if p.MinWallThickness != nil {
			fmt.Fprintf(&b, "Thinnest wall %.2f mm (threshold %.2f mm).\n\n", *p.MinWallThickness, p.ThresholdThickness)
		}
		for _, w := range p.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		if len(p.Warnings) > 0 {
			b.WriteString("\n")
		}
	}

	if len(s.Files) > 0 {
		b.WriteString("## Files\n\n")
		for _, f := range s.Files {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
		b.WriteString("\n")
	}
	writeOutput(&b, r.Output)
	return b.String()
}

func writeOutput(b *strings.Builder, output string) {
	output = strings.TrimSpace(output)
	if output == "" {
		return
	}
	fmt.Fprintf(b, "## Output\n\n```\n%s\n```\n", output)
}
