package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

// FootprintSource fetches building footprints for a bounding box. Sources apply their own
// upstream result limit; limit <= 0 means the source default.
type FootprintSource interface {
	Name() string
	Footprints(ctx context.Context, bbox domain.BoundingBox, limit int) ([]domain.Footprint, error)
}

// TaskResolver maps a HOT Tasking Manager task id to its bounding box.
type TaskResolver interface {
	ResolveTask(ctx context.Context, taskID int) (domain.BoundingBox, error)
}

// ScanRunRepository persists scan runs and their overlap pairs.
type ScanRunRepository interface {
	Save(ctx context.Context, run *domain.ScanRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ScanRun, error)
	List(ctx context.Context, offset, limit int) ([]domain.ScanRunSummary, int, error)
}
