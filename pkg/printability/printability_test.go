package printability_test

import (
	"context"
	"testing"

	"github.com/aretw0/cadloop/internal/testutils"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/printability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(minX, minY, minZ, maxX, maxY, maxZ float64) domain.BoundingBox {
	return domain.BoundingBox{
		Min: domain.Vec3{X: minX, Y: minY, Z: minZ},
		Max: domain.Vec3{X: maxX, Y: maxY, Z: maxZ},
	}
}

func TestAnalyzeMesh_ClosedCubeIsPrintable(t *testing.T) {
	mesh := testutils.BoxMesh(testutils.CenteredBox(10, 10, 10))

	r, err := printability.AnalyzeMesh(context.Background(), mesh, printability.Options{})
	require.NoError(t, err)

	assert.True(t, r.IsWatertight)
	assert.True(t, r.IsManifold)
	assert.True(t, r.IsVolume)
	assert.True(t, r.Printable)
	assert.Equal(t, 2, r.EulerNumber)
	assert.Equal(t, 12, r.Triangles)
	assert.Equal(t, 1, r.Parts)
	assert.InDelta(t, 1000, r.Volume, 1e-6)
	assert.InDelta(t, 600, r.Area, 1e-6)
	require.NotNil(t, r.MinWallThickness)
	assert.InDelta(t, 10, *r.MinWallThickness, 1e-6)
	assert.Equal(t, domain.DefaultMinWallThickness, r.ThresholdThickness)
	assert.Empty(t, r.ThinRegions)
	assert.Zero(t, r.OverhangArea)
	assert.Empty(t, r.Warnings)
}

func TestAnalyzeMesh_ThinPlate(t *testing.T) {
	mesh := testutils.BoxMesh(testutils.CenteredBox(10, 10, 0.2))

	r, err := printability.AnalyzeMesh(context.Background(), mesh, printability.Options{})
	require.NoError(t, err)

	assert.True(t, r.IsWatertight)
	assert.False(t, r.Printable)
	require.NotNil(t, r.MinWallThickness)
	assert.InDelta(t, 0.2, *r.MinWallThickness, 1e-6)

	// Top and bottom faces are separate regions: the side walls between
	// them are 10 mm across.
	require.Len(t, r.ThinRegions, 2)
	for _, reg := range r.ThinRegions {
		assert.Equal(t, 2, reg.Triangles)
		assert.InDelta(t, 100, reg.Area, 1e-6)
		assert.InDelta(t, 0.2, reg.MinThickness, 1e-6)
	}
	assert.Contains(t, r.Warnings, "2 regions thinner than 0.40 mm (thinnest 0.20 mm)")
	assert.Contains(t, r.Warnings, "Bounding box Z extent 0.20 mm is below 0.40 mm")
}

func TestAnalyzeMesh_ThresholdIsConfigurable(t *testing.T) {
	mesh := testutils.BoxMesh(testutils.CenteredBox(10, 10, 0.2))

	r, err := printability.AnalyzeMesh(context.Background(), mesh, printability.Options{MinWallThickness: 0.1})
	require.NoError(t, err)

	assert.True(t, r.Printable)
	assert.Equal(t, 0.1, r.ThresholdThickness)
	assert.Empty(t, r.ThinRegions)
}

func TestAnalyzeMesh_OpenBox(t *testing.T) {
	tris := testutils.BoxTriangles(testutils.CenteredBox(10, 10, 10))
	// Drop the +Z face.
	tris = append(tris[:2:2], tris[4:]...)
	mesh := domain.NewMesh(tris, 1e-9)

	r, err := printability.AnalyzeMesh(context.Background(), mesh, printability.Options{})
	require.NoError(t, err)

	assert.False(t, r.IsWatertight)
	assert.False(t, r.IsManifold)
	assert.False(t, r.Printable)
	assert.Equal(t, 4, r.BoundaryEdges)
	assert.Zero(t, r.NonManifoldEdges)
	require.NotEmpty(t, r.Warnings)
	assert.Contains(t, r.Warnings[0], "not watertight")
}

func TestAnalyzeMesh_InsideOut(t *testing.T) {
	tris := testutils.BoxTriangles(testutils.CenteredBox(10, 10, 10))
	for i, tr := range tris {
		tris[i] = domain.Triangle{tr[0], tr[2], tr[1]}
	}
	mesh := domain.NewMesh(tris, 1e-9)

	r, err := printability.AnalyzeMesh(context.Background(), mesh, printability.Options{})
	require.NoError(t, err)

	assert.True(t, r.IsManifold)
	assert.False(t, r.IsVolume)
	require.NotNil(t, r.MinWallThickness)
	assert.InDelta(t, 10, *r.MinWallThickness, 1e-6)
	assert.False(t, r.Printable)
	assert.Contains(t, r.Warnings, "Mesh is inside out: normals point inward")
}

func TestAnalyzeMesh_Overhang(t *testing.T) {
	var tris []domain.Triangle
	tris = append(tris, testutils.BoxTriangles(box(-5, -5, 0, 5, 5, 10))...)
	tris = append(tris, testutils.BoxTriangles(box(-15, -5, 20, 15, 5, 22))...)
	mesh := domain.NewMesh(tris, 1e-9)

	r, err := printability.AnalyzeMesh(context.Background(), mesh, printability.Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, r.Parts)
	assert.InDelta(t, 300, r.OverhangArea, 1e-6)
	assert.Contains(t, r.Warnings, "Model has 2 separate parts")
}

func TestAnalyzeMesh_Unsupported(t *testing.T) {
	_, err := printability.AnalyzeMesh(context.Background(), &domain.Mesh{}, printability.Options{})
	assert.ErrorIs(t, err, domain.ErrAnalysisUnsupported)

	flat := domain.NewMesh([]domain.Triangle{
		{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}},
		{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}},
	}, 1e-9)
	_, err = printability.AnalyzeMesh(context.Background(), flat, printability.Options{})
	assert.ErrorIs(t, err, domain.ErrAnalysisUnsupported)
}

func TestAnalyzeMesh_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := printability.AnalyzeMesh(ctx, testutils.BoxMesh(testutils.CenteredBox(1, 1, 1)), printability.Options{})
	assert.ErrorIs(t, err, domain.ErrAnalysisUnsupported)
}

func TestAnalyzer_Analyze(t *testing.T) {
	k := testutils.NewKernel()
	a := printability.New(k, printability.WithDefaults(printability.Options{MinWallThickness: 1}))

	plate, err := k.Box(20, 20, 0.8)
	require.NoError(t, err)

	r, err := a.Analyze(context.Background(), plate, printability.Options{})
	require.NoError(t, err)
	assert.False(t, r.Printable)
	assert.Equal(t, 1.0, r.ThresholdThickness)

	r, err = a.Analyze(context.Background(), plate, printability.Options{MinWallThickness: 0.5})
	require.NoError(t, err)
	assert.True(t, r.Printable)

	_, err = a.Analyze(context.Background(), nil, printability.Options{})
	assert.ErrorIs(t, err, domain.ErrAnalysisUnsupported)

	_, err = a.Analyze(context.Background(), &testutils.Solid{}, printability.Options{})
	assert.ErrorIs(t, err, domain.ErrAnalysisUnsupported)
}
