// Package meshio encodes solids into mesh interchange formats.
package meshio

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"github.com/aretw0/cadloop/internal/logging"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/ports"
	"github.com/hschendel/stl"
)

// Media types of the supported formats.
const (
	MediaSTL = "model/stl"
	Media3MF = "model/3mf"
)

// Exporter tessellates solids and writes the mesh as STL or 3MF.
type Exporter struct {
	tess   ports.Tessellator
	ascii  bool
	name   string
	logger *slog.Logger
}

var _ ports.Exporter = (*Exporter)(nil)

// Option configures the Exporter.
type Option func(*Exporter)

// WithASCII writes text STL instead of binary.
func WithASCII() Option {
	return func(e *Exporter) {
		e.ascii = true
	}
}

// WithLogger configures a logger for the Exporter.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// New creates an Exporter.
func New(tess ports.Tessellator, opts ...Option) *Exporter {
	e := &Exporter{tess: tess, name: "cadloop", logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ParseFormat normalises a format name.
func ParseFormat(s string) (domain.ExportFormat, error) {
	switch f := domain.ExportFormat(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); f {
	case domain.FormatSTL, domain.Format3MF, domain.FormatSTEP:
		return f, nil
	case "stp":
		return domain.FormatSTEP, nil
	default:
		return "", domain.Errorf(domain.KindUnsupportedFormat, "unknown export format %q (supported: stl, 3mf)", s)
	}
}

// MediaType returns the content type of format, or "" for formats this
// exporter cannot write.
func (e *Exporter) MediaType(format domain.ExportFormat) string {
	switch format {
	case domain.FormatSTL:
		return MediaSTL
	case domain.Format3MF:
		return Media3MF
	default:
		return ""
	}
}

// Encode writes s in format.
func (e *Exporter) Encode(ctx context.Context, s ports.Solid, format domain.ExportFormat) ([]byte, error) {
	switch format {
	case domain.FormatSTL, domain.Format3MF:
	case domain.FormatSTEP:
		return nil, domain.Errorf(domain.KindUnsupportedFormat, "step export needs a boundary representation kernel; use stl or 3mf")
	default:
		return nil, domain.Errorf(domain.KindUnsupportedFormat, "unknown export format %q", format)
	}
	if s == nil || s.Empty() {
		return nil, domain.Errorf(domain.KindExportFailed, "model has no geometry to export")
	}
	mesh, err := e.tess.Tessellate(s)
	if err != nil {
		return nil, domain.Wrap(domain.KindExportFailed, err, "tessellation failed")
	}
	if mesh.Empty() {
		return nil, domain.Errorf(domain.KindExportFailed, "model tessellated to an empty mesh")
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.Wrap(domain.KindExportFailed, err, "export cancelled")
	}

	var buf bytes.Buffer
	switch format {
	case domain.FormatSTL:
		err = e.writeSTL(&buf, mesh)
	case domain.Format3MF:
		err = write3MF(&buf, mesh)
	}
	if err != nil {
		return nil, domain.Wrap(domain.KindExportFailed, err, string(format)+" encoding failed")
	}
	e.logger.Debug("Exported", "format", format, "triangles", len(mesh.Triangles), "bytes", buf.Len())
	return buf.Bytes(), nil
}

func (e *Exporter) writeSTL(buf *bytes.Buffer, mesh *domain.Mesh) error {
	solid := &stl.Solid{
		Name:      e.name,
		IsAscii:   e.ascii,
		Triangles: make([]stl.Triangle, len(mesh.Triangles)),
	}
	for i := range mesh.Triangles {
		t := mesh.Triangle(i)
		solid.Triangles[i] = stl.Triangle{
			Normal:   vec32(mesh.Normal(i)),
			Vertices: [3]stl.Vec3{vec32(t[0]), vec32(t[1]), vec32(t[2])},
		}
	}
	return solid.WriteAll(buf)
}

func vec32(v domain.Vec3) stl.Vec3 {
	return stl.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}
