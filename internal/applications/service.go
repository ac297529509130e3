package applications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"signup-backend/internal/inspect"
	"signup-backend/internal/licenses"
	"signup-backend/internal/queue"
	"signup-backend/internal/shared/storage/object"
	"signup-backend/internal/shared/telemetry"
	"signup-backend/internal/signup"
)

// DefaultSeats is how many licenses an approved company starts with.
const DefaultSeats = 50

// Service owns the application lifecycle from submission to review.
type Service struct {
	Repo     Repo
	Queue    queue.Client
	Store    object.ObjectStore
	Licenses *licenses.Service
	Seats    int

	hashCost int
	now      func() time.Time
}

// NewService constructs a Service. Queue, Store and Licenses may be nil.
func NewService(repo Repo, q queue.Client, store object.ObjectStore, lic *licenses.Service, seats int) *Service {
	if seats <= 0 {
		seats = DefaultSeats
	}
	return &Service{
		Repo:     repo,
		Queue:    q,
		Store:    store,
		Licenses: lic,
		Seats:    seats,
		hashCost: bcrypt.DefaultCost,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SubmitApplication lets the service act as the signup form's submitter.
func (s *Service) SubmitApplication(ctx context.Context, sub signup.Submission) (signup.Receipt, error) {
	app, err := s.Submit(ctx, sub)
	if err != nil {
		return signup.Receipt{}, err
	}
	return signup.Receipt{ApplicationID: app.ID}, nil
}

// Submit persists a completed signup and queues it for review. Resubmitting the
// same session returns the application created the first time.
func (s *Service) Submit(ctx context.Context, sub signup.Submission) (Application, error) {
	sessionID := strings.TrimSpace(sub.SessionID)
	if sessionID == "" || len(sub.Files) == 0 {
		return Application{}, ErrInvalidInput
	}
	if existing, err := s.Repo.GetBySession(ctx, sessionID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Application{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(sub.Record.Password), s.hashCost)
	if err != nil {
		return Application{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	rec := sub.Record
	app := Application{
		ID:                 uuid.NewString(),
		SessionID:          sessionID,
		CompanyName:        rec.CompanyName,
		RegistrationNumber: rec.RegistrationNumber,
		Industry:           rec.Industry,
		CompanySize:        rec.CompanySize,
		Website:            rec.Website,
		Address:            rec.Address,
		AdminName:          rec.AdminName,
		AdminEmail:         strings.ToLower(rec.AdminEmail),
		AdminPhone:         rec.AdminPhone,
		JobTitle:           rec.JobTitle,
		PasswordHash:       string(hash),
		Status:             StatusSubmitted,
		CreatedAt:          now,
	}
	for _, f := range sub.Files {
		app.Documents = append(app.Documents, Document{
			ID:            uuid.NewString(),
			ApplicationID: app.ID,
			FileName:      f.Name,
			MimeType:      f.MimeType,
			SizeBytes:     f.SizeBytes,
			StorageKey:    f.StorageKey,
			CreatedAt:     now,
		})
	}

	if err := s.Repo.Create(ctx, app); err != nil {
		return Application{}, fmt.Errorf("create application: %w", err)
	}
	telemetry.Info("applications.submitted", map[string]any{
		"application_id": app.ID,
		"session_id":     sessionID,
		"documents":      len(app.Documents),
	})

	if s.Queue != nil {
		msg := queue.NewMessage(app.ID, sessionID, now)
		if err := s.Queue.Send(ctx, msg); err != nil {
			// The application is stored; an operator can requeue it.
			telemetry.Error("applications.enqueue_failed", map[string]any{
				"application_id": app.ID,
				"error":          err.Error(),
			})
		}
	}
	return app, nil
}

// List returns applications for review, newest first.
func (s *Service) List(ctx context.Context, status Status, limit, offset int) ([]Application, error) {
	if status != "" && !status.Valid() {
		return nil, ErrInvalidInput
	}
	return s.Repo.List(ctx, status, limit, offset)
}

// Get returns one application with its documents.
func (s *Service) Get(ctx context.Context, id string) (Application, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Application{}, ErrInvalidInput
	}
	return s.Repo.Get(ctx, id)
}

// Approve accepts an application and provisions the company's licenses.
// Licenses are provisioned before the status flips, so a failed provision
// leaves the application reviewable and Approve can be retried.
func (s *Service) Approve(ctx context.Context, id, note string) (Application, error) {
	app, err := s.Get(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if app.Status != StatusSubmitted && app.Status != StatusPendingReview {
		return Application{}, ErrInvalidTransition
	}
	if s.Licenses != nil {
		if _, err := s.Licenses.Provision(ctx, app.ID, s.Seats); err != nil {
			return Application{}, fmt.Errorf("provision licenses: %w", err)
		}
	}
	return s.review(ctx, app.ID, StatusApproved, note)
}

// Reject declines an application.
func (s *Service) Reject(ctx context.Context, id, note string) (Application, error) {
	return s.review(ctx, id, StatusRejected, note)
}

func (s *Service) review(ctx context.Context, id string, to Status, note string) (Application, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Application{}, ErrInvalidInput
	}
	at := s.now()
	from := []Status{StatusSubmitted, StatusPendingReview}
	if err := s.Repo.UpdateStatus(ctx, id, from, to, strings.TrimSpace(note), &at); err != nil {
		return Application{}, err
	}
	telemetry.Info("applications.reviewed", map[string]any{
		"application_id": id,
		"status":         string(to),
	})
	return s.Repo.Get(ctx, id)
}

// ProcessReview inspects every stored document and marks the application ready
// for a reviewer. Running it again is harmless.
func (s *Service) ProcessReview(ctx context.Context, applicationID string) error {
	app, err := s.Get(ctx, applicationID)
	if err != nil {
		return err
	}

	for _, doc := range app.Documents {
		if doc.InspectedAt != nil || doc.StorageKey == "" || s.Store == nil {
			continue
		}
		sum, err := inspect.Inspect(ctx, s.Store, doc.StorageKey, doc.MimeType, doc.FileName)
		switch {
		case err == nil:
		case errors.Is(err, inspect.ErrUnsupported), errors.Is(err, inspect.ErrUnreadable):
			telemetry.Warn("applications.inspect.skipped", map[string]any{
				"application_id": app.ID,
				"document_id":    doc.ID,
				"error":          err.Error(),
			})
		default:
			return fmt.Errorf("inspect document %s: %w", doc.ID, err)
		}
		if err := s.Repo.UpdateInspection(ctx, doc.ID, sum.Pages, sum.Words, s.now()); err != nil {
			return fmt.Errorf("record inspection %s: %w", doc.ID, err)
		}
	}

	err = s.Repo.UpdateStatus(ctx, app.ID, []Status{StatusSubmitted}, StatusPendingReview, "", nil)
	if err != nil && !errors.Is(err, ErrInvalidTransition) {
		return err
	}
	return nil
}
