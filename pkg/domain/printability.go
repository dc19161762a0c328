package domain

// DefaultMinWallThickness is the width of a common 0.4 mm nozzle.
const DefaultMinWallThickness = 0.4

// ThinRegion is a connected patch of surface whose wall is thinner than
// the requested minimum.
type ThinRegion struct {
	Triangles    int         `json:"triangles"`
	MinThickness float64     `json:"min_thickness"`
	Area         float64     `json:"area"`
	Center       Vec3        `json:"center"`
	Bounds       BoundingBox `json:"bounds"`
}

// PrintabilityReport is the result of analysing a solid for fabrication.
type PrintabilityReport struct {
	IsManifold         bool         `json:"is_manifold"`
	IsWatertight       bool         `json:"is_watertight"`
	IsVolume           bool         `json:"is_volume"`
	Printable          bool         `json:"printable"`
	MinWallThickness   *float64     `json:"min_wall_thickness"`
	ThresholdThickness float64      `json:"threshold_thickness"`
	ThinRegions        []ThinRegion `json:"thin_regions"`
	OverhangArea       float64      `json:"overhang_area"`
	EulerNumber        int          `json:"euler_number"`
	Triangles          int          `json:"triangles"`
	DegenerateFaces    int          `json:"degenerate_faces"`
	BoundaryEdges      int          `json:"boundary_edges"`
	NonManifoldEdges   int          `json:"non_manifold_edges"`
	Parts              int          `json:"parts"`
	Volume             float64      `json:"volume"`
	Area               float64      `json:"area"`
	Warnings           []string     `json:"warnings"`
}

// ExportFormat names an export codec.
type ExportFormat string

const (
	FormatSTL  ExportFormat = "stl"
	FormatSTEP ExportFormat = "step"
	Format3MF  ExportFormat = "3mf"
)

// ExportArtifact is the encoded bytes of a model.
type ExportArtifact struct {
	Model     string       `json:"model"`
	Format    ExportFormat `json:"format"`
	MediaType string       `json:"media_type"`
	Size      int          `json:"size"`
	Key       string       `json:"key,omitempty"`
	Data      []byte       `json:"-"`
}
