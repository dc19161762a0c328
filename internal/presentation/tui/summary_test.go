package tui

import (
	"bytes"
	"testing"

	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestSummary_Success(t *testing.T) {
	wall := 2.5
	s := Summary{
		Report: domain.ExecutionReport{Model: "bracket", Success: true, DurationMS: 12, Output: "hello\n"},
		Measurement: &domain.Measurement{
			Width: 60, Depth: 40, Height: 30, Volume: 72000, Parts: 1, Triangles: 12,
		},
		Printability: &domain.PrintabilityReport{
			Printable:          false,
			MinWallThickness:   &wall,
			ThresholdThickness: 3,
			Warnings:           []string{"1 regions thinner than 3.00 mm (thinnest 2.50 mm)"},
		},
		Files: []string{"out/bracket-iso.png"},
	}

	md := s.Markdown()
	assert.Contains(t, md, "# bracket")
	assert.Contains(t, md, "**OK** in 12 ms")
	assert.Contains(t, md, "| Size | 60.00 × 40.00 × 30.00 mm |")
	assert.Contains(t, md, "## Printability: not printable")
	assert.Contains(t, md, "Thinnest wall 2.50 mm (threshold 3.00 mm)")
	assert.Contains(t, md, "- `out/bracket-iso.png`")
	assert.Contains(t, md, "```\nhello\n```")
}

func TestSummary_Failure(t *testing.T) {
	s := Summary{Report: domain.ExecutionReport{
		Model:     "bad",
		ErrorKind: domain.KindSyntaxError,
		Error:     "SyntaxError: 1:17: expected ')'",
	}}

	md := s.Markdown()
	assert.Contains(t, md, "**Failed** with `SyntaxError`")
	assert.Contains(t, md, "expected ')'")
	assert.NotContains(t, md, "## Files")
}

func TestNewRenderer_PlainWhenNotATerminal(t *testing.T) {
	render := NewRenderer(nil)
	out, err := render("# title")
	assert.NoError(t, err)
	assert.Equal(t, "# title", out)
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "0.1.0\n")
	assert.Contains(t, buf.String(), "v0.1.0")
}
