package licenses

import (
	"context"
	"strings"
	"time"

	"signup-backend/internal/shared/metrics"
	"signup-backend/internal/shared/telemetry"
)

// DefaultTerm is the length of a license period.
const DefaultTerm = 365 * 24 * time.Hour

// Service manages seat allocation per company.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a Service with an in-memory store.
func NewService() *Service {
	return NewServiceWithStore(NewMemoryStore())
}

// NewServiceWithStore constructs a Service over store.
func NewServiceWithStore(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the company's current usage.
func (s *Service) Get(ctx context.Context, companyID string) (Usage, error) {
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return Usage{}, ErrInvalidInput
	}
	return s.store.Get(ctx, companyID)
}

// Provision grants seats and starts a new term. Seats already assigned are kept.
func (s *Service) Provision(ctx context.Context, companyID string, seats int) (Usage, error) {
	companyID = strings.TrimSpace(companyID)
	if companyID == "" || seats <= 0 {
		return Usage{}, ErrInvalidInput
	}
	now := s.now()
	u, err := s.store.Upsert(ctx, Usage{
		CompanyID:   companyID,
		Seats:       seats,
		PeriodStart: now,
		PeriodEnd:   now.Add(DefaultTerm),
	})
	if err != nil {
		return Usage{}, err
	}
	telemetry.Info("licenses.provisioned", map[string]any{
		"company_id": companyID,
		"seats":      seats,
	})
	return u, nil
}

// Assign takes n seats, failing with ErrLimitReached when not enough are free.
func (s *Service) Assign(ctx context.Context, companyID string, n int) (Usage, error) {
	companyID = strings.TrimSpace(companyID)
	if companyID == "" || n <= 0 {
		return Usage{}, ErrInvalidInput
	}
	u, err := s.store.Assign(ctx, companyID, n, s.now())
	if err != nil {
		return Usage{}, err
	}
	metrics.AddSeatsAssigned(n)
	return u, nil
}

// Release frees n seats. Used never drops below zero.
func (s *Service) Release(ctx context.Context, companyID string, n int) (Usage, error) {
	companyID = strings.TrimSpace(companyID)
	if companyID == "" || n <= 0 {
		return Usage{}, ErrInvalidInput
	}
	return s.store.Release(ctx, companyID, n)
}
