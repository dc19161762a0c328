package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/cadloop"
	"github.com/aretw0/cadloop/internal/presentation/tui"
	"github.com/aretw0/cadloop/pkg/domain"
)

// Engine is the part of cadloop.Engine the CLI drives.
type Engine interface {
	CreateModel(ctx context.Context, name, code string) (*cadloop.CreateResult, error)
	RemoveModel(ctx context.Context, name string) error
	Measure(name string) (domain.Measurement, error)
	RenderAll(ctx context.Context, name string) ([]*domain.RenderArtifact, error)
	AnalyzePrintability(ctx context.Context, name string, minWallThickness float64) (*domain.PrintabilityReport, error)
	Export(ctx context.Context, name string, format domain.ExportFormat) (*domain.ExportArtifact, error)
}

// RunOptions contains the configuration of a script run.
type RunOptions struct {
	Script string
	// Name of the model. Defaults to the script's base name.
	Name string
	// OutDir receives renders and exports.
	OutDir string
	Render bool
	// Export is a format name; empty skips the export.
	Export           string
	Analyze          bool
	MinWallThickness float64
	JSON             bool
}

// ErrExecutionFailed is returned by Run when the script ran but failed.
var ErrExecutionFailed = errors.New("execution failed")

func (o RunOptions) modelName() string {
	if o.Name != "" {
		return o.Name
	}
	base := filepath.Base(o.Script)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Run executes the script once as a fresh model and prints a summary to
// out. render formats markdown; nil prints it raw.
func Run(ctx context.Context, engine Engine, opts RunOptions, out io.Writer, render func(string) (string, error)) (tui.Summary, error) {
	code, err := os.ReadFile(opts.Script)
	if err != nil {
		return tui.Summary{}, fmt.Errorf("failed to read script: %w", err)
	}
	name := opts.modelName()

	if err := engine.RemoveModel(ctx, name); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return tui.Summary{}, err
	}
	res, err := engine.CreateModel(ctx, name, string(code))
	if err != nil {
		return tui.Summary{}, err
	}

	summary := tui.Summary{Report: res.Report(name)}
	if res.Success {
		if err := collect(ctx, engine, opts, name, &summary); err != nil {
			return summary, err
		}
	}
	if err := printSummary(out, summary, opts.JSON, render); err != nil {
		return summary, err
	}
	if !res.Success {
		return summary, ErrExecutionFailed
	}
	return summary, nil
}

func collect(ctx context.Context, engine Engine, opts RunOptions, name string, s *tui.Summary) error {
	m, err := engine.Measure(name)
	if err != nil {
		return err
	}
	s.Measurement = &m

	if opts.Analyze {
		r, err := engine.AnalyzePrintability(ctx, name, opts.MinWallThickness)
		if err != nil && !errors.Is(err, domain.ErrAnalysisUnsupported) {
			return err
		}
		s.Printability = r
	}

	if opts.Render {
		arts, err := engine.RenderAll(ctx, name)
		if err != nil {
			return err
		}
		for _, art := range arts {
			path, err := writeFile(opts.OutDir, fmt.Sprintf("%s-%s.%s", name, art.Spec.Label(), art.Format), art.Data)
			if err != nil {
				return err
			}
			s.Files = append(s.Files, path)
		}
	}

	if opts.Export != "" {
		art, err := engine.Export(ctx, name, domain.ExportFormat(strings.ToLower(opts.Export)))
		if err != nil {
			return err
		}
		path, err := writeFile(opts.OutDir, fmt.Sprintf("%s.%s", name, art.Format), art.Data)
		if err != nil {
			return err
		}
		s.Files = append(s.Files, path)
	}
	return nil
}

func writeFile(dir, name string, data []byte) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

func printSummary(out io.Writer, s tui.Summary, asJSON bool, render func(string) (string, error)) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	md := s.Markdown()
	if render != nil {
		if styled, err := render(md); err == nil {
			md = styled
		}
	}
	_, err := io.WriteString(out, md)
	return err
}
