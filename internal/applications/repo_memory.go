package applications

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Application
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Application)}
}

func (r *MemoryRepo) Create(ctx context.Context, app Application) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	app.Documents = append([]Document(nil), app.Documents...)
	r.data[app.ID] = app
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Application, error) {
	if err := ctx.Err(); err != nil {
		return Application{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.data[id]
	if !ok {
		return Application{}, ErrNotFound
	}
	return clone(app), nil
}

func (r *MemoryRepo) GetBySession(ctx context.Context, sessionID string) (Application, error) {
	if err := ctx.Err(); err != nil {
		return Application{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, app := range r.data {
		if app.SessionID == sessionID {
			return clone(app), nil
		}
	}
	return Application{}, ErrNotFound
}

// List returns applications newest first, optionally filtered by status.
func (r *MemoryRepo) List(ctx context.Context, status Status, limit, offset int) ([]Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	apps := make([]Application, 0, len(r.data))
	for _, app := range r.data {
		if status == "" || app.Status == status {
			app.Documents = nil
			apps = append(apps, app)
		}
	}
	r.mu.RUnlock()

	sort.Slice(apps, func(i, j int) bool {
		return apps[i].CreatedAt.After(apps[j].CreatedAt)
	})
	if offset >= len(apps) {
		return []Application{}, nil
	}
	end := len(apps)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return apps[offset:end], nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, from []Status, to Status, note string, reviewedAt *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	if !containsStatus(from, app.Status) {
		return ErrInvalidTransition
	}
	app.Status = to
	if note != "" {
		app.ReviewNote = note
	}
	if reviewedAt != nil {
		at := *reviewedAt
		app.ReviewedAt = &at
	}
	r.data[id] = app
	return nil
}

func (r *MemoryRepo) UpdateInspection(ctx context.Context, documentID string, pages, words int, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, app := range r.data {
		for i := range app.Documents {
			if app.Documents[i].ID == documentID {
				app.Documents[i].PageCount = pages
				app.Documents[i].WordCount = words
				app.Documents[i].InspectedAt = &at
				r.data[id] = app
				return nil
			}
		}
	}
	return ErrNotFound
}

func clone(app Application) Application {
	app.Documents = append([]Document(nil), app.Documents...)
	return app
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
