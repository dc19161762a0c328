package ports

import (
	"context"

	"github.com/aretw0/cadloop/pkg/domain"
)

// Projector is the Projector Capability: given a solid and a camera it
// returns vector output (shaded faces, visible and hidden edges) on the
// view plane. Rasterization of that output happens under the display arbiter.
//
// Failures are reported with domain.KindProjectionFailed.
type Projector interface {
	Project(ctx context.Context, s Solid, cam domain.Camera, opts domain.ProjectOptions) (*domain.Projection, error)
}
