package meshio_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/aretw0/cadloop/internal/testutils"
	"github.com/aretw0/cadloop/pkg/adapters/meshio"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/hschendel/stl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stlBounds(s *stl.Solid) domain.BoundingBox {
	first := s.Triangles[0].Vertices[0]
	p := domain.Vec3{X: float64(first[0]), Y: float64(first[1]), Z: float64(first[2])}
	bb := domain.BoundingBox{Min: p, Max: p}
	for _, t := range s.Triangles {
		for _, v := range t.Vertices {
			bb = bb.Extend(domain.Vec3{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])})
		}
	}
	return bb
}

func TestExporter_STLRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []meshio.Option
	}{
		{"binary", nil},
		{"ascii", []meshio.Option{meshio.WithASCII()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			k := testutils.NewKernel()
			box, err := k.Box(60, 40, 30)
			require.NoError(t, err)

			data, err := meshio.New(k, tc.opts...).Encode(context.Background(), box, domain.FormatSTL)
			require.NoError(t, err)

			read, err := stl.ReadAll(bytes.NewReader(data))
			require.NoError(t, err)
			require.Len(t, read.Triangles, 12)

			got, want := stlBounds(read), box.Bounds()
			assert.InDelta(t, want.Min.X, got.Min.X, 1e-4)
			assert.InDelta(t, want.Max.Y, got.Max.Y, 1e-4)
			assert.InDelta(t, want.Max.Z, got.Max.Z, 1e-4)
			assert.InDelta(t, 60, got.Size().X, 1e-4)
		})
	}
}

func TestExporter_Formats(t *testing.T) {
	k := testutils.NewKernel()
	e := meshio.New(k)
	box, err := k.Box(1, 1, 1)
	require.NoError(t, err)

	_, err = e.Encode(context.Background(), box, domain.FormatSTEP)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	_, err = e.Encode(context.Background(), box, "obj")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	_, err = e.Encode(context.Background(), &testutils.Solid{}, domain.FormatSTL)
	assert.ErrorIs(t, err, domain.ErrExportFailed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Encode(ctx, box, domain.FormatSTL)
	assert.ErrorIs(t, err, domain.ErrExportFailed)

	assert.Equal(t, meshio.MediaSTL, e.MediaType(domain.FormatSTL))
	assert.Equal(t, meshio.Media3MF, e.MediaType(domain.Format3MF))
	assert.Empty(t, e.MediaType(domain.FormatSTEP))
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]domain.ExportFormat{
		"stl":  domain.FormatSTL,
		".STL": domain.FormatSTL,
		"3mf":  domain.Format3MF,
		"stp":  domain.FormatSTEP,
		"step": domain.FormatSTEP,
	} {
		got, err := meshio.ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := meshio.ParseFormat("dxf")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}
