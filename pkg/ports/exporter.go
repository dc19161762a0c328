package ports

import (
	"context"

	"github.com/aretw0/cadloop/pkg/domain"
)

// Exporter is the Export Capability.
// It fails with domain.KindUnsupportedFormat or domain.KindExportFailed.
type Exporter interface {
	Encode(ctx context.Context, s Solid, format domain.ExportFormat) ([]byte, error)
	// MediaType returns the content type of an encoded format.
	MediaType(format domain.ExportFormat) string
}
