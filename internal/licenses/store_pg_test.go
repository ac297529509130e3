package licenses

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreAssign(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(DefaultTerm)
	store := NewPGStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM license_usage WHERE company_id = $1 FOR UPDATE")).
		WithArgs("co-1").
		WillReturnRows(sqlmock.NewRows([]string{"company_id", "seats", "used", "period_start", "period_end"}).
			AddRow("co-1", 10, 4, start, end))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE license_usage SET used = $1")).
		WithArgs(6, "co-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u, err := store.Assign(context.Background(), "co-1", 2, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if u.Used != 6 {
		t.Fatalf("expected used 6, got %d", u.Used)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreAssignLimitRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewPGStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("co-1").
		WillReturnRows(sqlmock.NewRows([]string{"company_id", "seats", "used", "period_start", "period_end"}).
			AddRow("co-1", 5, 5, start, start.Add(DefaultTerm)))
	mock.ExpectRollback()

	if _, err := store.Assign(context.Background(), "co-1", 1, start); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM license_usage")).
		WithArgs("co-x").
		WillReturnRows(sqlmock.NewRows([]string{"company_id", "seats", "used", "period_start", "period_end"}))

	if _, err := NewPGStore(db).Get(context.Background(), "co-x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreUpsertReturnsUsed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO license_usage")).
		WithArgs("co-1", 20, start, start.Add(DefaultTerm)).
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(7))

	u, err := NewPGStore(db).Upsert(context.Background(), Usage{CompanyID: "co-1", Seats: 20, PeriodStart: start, PeriodEnd: start.Add(DefaultTerm)})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if u.Used != 7 {
		t.Fatalf("expected used 7, got %d", u.Used)
	}
}
