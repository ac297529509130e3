package licenses

import (
	"context"
	"time"
)

// Store persists license usage. Implementations must apply Assign and Release atomically.
type Store interface {
	Get(ctx context.Context, companyID string) (Usage, error)
	Upsert(ctx context.Context, u Usage) (Usage, error)
	Assign(ctx context.Context, companyID string, n int, now time.Time) (Usage, error)
	Release(ctx context.Context, companyID string, n int) (Usage, error)
}
