package licenses

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGStore stores usage in the license_usage table.
type PGStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed license store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) Get(ctx context.Context, companyID string) (Usage, error) {
	const query = `
SELECT company_id, seats, used, period_start, period_end
FROM license_usage
WHERE company_id = $1`
	var u Usage
	err := s.DB.QueryRowContext(ctx, query, companyID).Scan(&u.CompanyID, &u.Seats, &u.Used, &u.PeriodStart, &u.PeriodEnd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Usage{}, ErrNotFound
		}
		return Usage{}, err
	}
	return u, nil
}

func (s *PGStore) Upsert(ctx context.Context, u Usage) (Usage, error) {
	const query = `
INSERT INTO license_usage (company_id, seats, used, period_start, period_end, updated_at)
VALUES ($1, $2, 0, $3, $4, NOW())
ON CONFLICT (company_id) DO UPDATE SET
    seats = EXCLUDED.seats,
    period_start = EXCLUDED.period_start,
    period_end = EXCLUDED.period_end,
    updated_at = NOW()
RETURNING used`
	if err := s.DB.QueryRowContext(ctx, query, u.CompanyID, u.Seats, u.PeriodStart, u.PeriodEnd).Scan(&u.Used); err != nil {
		return Usage{}, err
	}
	return u, nil
}

func (s *PGStore) Assign(ctx context.Context, companyID string, n int, now time.Time) (u Usage, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Usage{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	u, err = lockUsage(ctx, tx, companyID)
	if err != nil {
		return Usage{}, err
	}
	if u.Expired(now) {
		err = ErrExpired
		return Usage{}, err
	}
	if u.Used+n > u.Seats {
		err = ErrLimitReached
		return Usage{}, err
	}
	u.Used += n
	if _, err = tx.ExecContext(ctx, `
UPDATE license_usage SET used = $1, updated_at = NOW() WHERE company_id = $2`, u.Used, companyID); err != nil {
		return Usage{}, err
	}
	if err = tx.Commit(); err != nil {
		return Usage{}, err
	}
	return u, nil
}

func (s *PGStore) Release(ctx context.Context, companyID string, n int) (u Usage, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Usage{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	u, err = lockUsage(ctx, tx, companyID)
	if err != nil {
		return Usage{}, err
	}
	u.Used -= n
	if u.Used < 0 {
		u.Used = 0
	}
	if _, err = tx.ExecContext(ctx, `
UPDATE license_usage SET used = $1, updated_at = NOW() WHERE company_id = $2`, u.Used, companyID); err != nil {
		return Usage{}, err
	}
	if err = tx.Commit(); err != nil {
		return Usage{}, err
	}
	return u, nil
}

func lockUsage(ctx context.Context, tx *sql.Tx, companyID string) (Usage, error) {
	var u Usage
	err := tx.QueryRowContext(ctx, `
SELECT company_id, seats, used, period_start, period_end FROM license_usage WHERE company_id = $1 FOR UPDATE`, companyID).
		Scan(&u.CompanyID, &u.Seats, &u.Used, &u.PeriodStart, &u.PeriodEnd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Usage{}, ErrNotFound
		}
		return Usage{}, err
	}
	return u, nil
}
