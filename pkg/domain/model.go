package domain

import "time"

// Solid is the opaque geometry handle produced by a kernel.
// Implementations must be immutable once returned.
type Solid interface {
	// Bounds returns the axis-aligned extent of the solid.
	Bounds() BoundingBox
	// Empty reports whether the solid encloses nothing.
	Empty() bool
}

// Operation names a store mutation.
type Operation string

const (
	OpCreate Operation = "create"
	OpModify Operation = "modify"
)

// Revision is one applied code submission.
type Revision struct {
	ID        string          `json:"id"`
	Operation Operation       `json:"operation"`
	Code      string          `json:"code"`
	AppliedAt time.Time       `json:"applied_at"`
	Summary   GeometrySummary `json:"summary"`
}

// Model is the read-only view of a named model at one point in time.
type Model struct {
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"created_at"`
	Sequence  uint64          `json:"sequence"`
	Revisions []Revision      `json:"revisions"`
	Summary   GeometrySummary `json:"summary"`

	// Geometry is valid for the duration of the caller's use; it is never
	// modified in place by the store.
	Geometry Solid `json:"-"`
}

// ModelSummary is one line of a listing.
type ModelSummary struct {
	Name      string          `json:"name"`
	Sequence  uint64          `json:"sequence"`
	CreatedAt time.Time       `json:"created_at"`
	Revisions int             `json:"revisions"`
	Summary   GeometrySummary `json:"summary"`
}

// GeometrySummary is the compact description returned after execution.
type GeometrySummary struct {
	Volume      float64     `json:"volume"`
	BoundingBox BoundingBox `json:"bounding_box"`
	Parts       int         `json:"parts"`
}

// ExecutionResult is the transient outcome of running modeling code.
type ExecutionResult struct {
	Success  bool             `json:"success"`
	Geometry Solid            `json:"-"`
	Summary  *GeometrySummary `json:"summary,omitempty"`
	Error    *Error           `json:"-"`
	Output   string           `json:"output,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// ErrorKind returns the failure kind, or "" on success.
func (r ExecutionResult) ErrorKind() ErrorKind {
	if r.Error == nil {
		return ""
	}
	return r.Error.Kind
}

// Failed builds an unsuccessful result.
func Failed(kind ErrorKind, format string, args ...any) ExecutionResult {
	return ExecutionResult{Error: Errorf(kind, format, args...)}
}

// Measurement is the full geometric report for a model.
type Measurement struct {
	Name         string      `json:"name"`
	BoundingBox  BoundingBox `json:"bounding_box"`
	Width        float64     `json:"width"`
	Depth        float64     `json:"depth"`
	Height       float64     `json:"height"`
	Volume       float64     `json:"volume_mm3"`
	SurfaceArea  float64     `json:"surface_area_mm2"`
	CenterOfMass Vec3        `json:"center_of_mass"`
	Triangles    int         `json:"triangles"`
	Vertices     int         `json:"vertices"`
	Parts        int         `json:"parts"`
	Revisions    int         `json:"revisions"`
}

// ExecutionReport is the wire form of an ExecutionResult.
type ExecutionReport struct {
	Model      string           `json:"model"`
	Success    bool             `json:"success"`
	Summary    *GeometrySummary `json:"summary,omitempty"`
	ErrorKind  ErrorKind        `json:"error_kind,omitempty"`
	Error      string           `json:"error,omitempty"`
	Output     string           `json:"output,omitempty"`
	DurationMS int64            `json:"duration_ms"`
}

// Report converts r for transports.
func (r ExecutionResult) Report(model string) ExecutionReport {
	rep := ExecutionReport{
		Model:      model,
		Success:    r.Success,
		Summary:    r.Summary,
		Output:     r.Output,
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Error != nil {
		rep.ErrorKind = r.Error.Kind
		rep.Error = r.Error.Error()
	}
	return rep
}
