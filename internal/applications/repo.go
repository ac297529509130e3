package applications

import (
	"context"
	"time"
)

// Repo defines persistence operations for applications.
type Repo interface {
	Create(ctx context.Context, app Application) error
	Get(ctx context.Context, id string) (Application, error)
	GetBySession(ctx context.Context, sessionID string) (Application, error)
	List(ctx context.Context, status Status, limit, offset int) ([]Application, error)
	// UpdateStatus moves an application to `to` only if its current status is one of from.
	UpdateStatus(ctx context.Context, id string, from []Status, to Status, note string, reviewedAt *time.Time) error
	UpdateInspection(ctx context.Context, documentID string, pages, words int, at time.Time) error
}
