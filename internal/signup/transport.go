package signup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"signup-backend/internal/shared/storage/object"
)

// UploadRequest identifies one file upload.
type UploadRequest struct {
	SessionID string
	FileID    string
	File      Candidate
}

// StoredFile is where a transport put the bytes. Simulated uploads leave it zero.
type StoredFile struct {
	StorageKey string
	MimeType   string
	SizeBytes  int64
}

// Transport moves a file's bytes somewhere. Upload calls report with in-flight
// progress (0..99) and returns when the upload is complete. It must return
// promptly once ctx is cancelled.
type Transport interface {
	Upload(ctx context.Context, req UploadRequest, report func(progress int)) (StoredFile, error)
	Discard(ctx context.Context, stored StoredFile) error
}

const (
	DefaultTickInterval  = 200 * time.Millisecond
	DefaultTickIncrement = 10
)

// SimulatedTransport advances progress by Increment every Interval and
// completes when progress would reach 100.
type SimulatedTransport struct {
	Interval  time.Duration
	Increment int
}

func (t SimulatedTransport) Upload(ctx context.Context, _ UploadRequest, report func(int)) (StoredFile, error) {
	interval := t.Interval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	step := t.Increment
	if step <= 0 {
		step = DefaultTickIncrement
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	progress := 0
	for {
		select {
		case <-ctx.Done():
			return StoredFile{}, ctx.Err()
		case <-ticker.C:
			progress += step
			if progress >= 100 {
				return StoredFile{}, nil
			}
			report(progress)
		}
	}
}

func (SimulatedTransport) Discard(context.Context, StoredFile) error { return nil }

// StoreTransport writes the file into an object store, reporting progress as
// the store consumes the bytes.
type StoreTransport struct {
	Store object.ObjectStore
}

func (t StoreTransport) Upload(ctx context.Context, req UploadRequest, report func(int)) (StoredFile, error) {
	if t.Store == nil {
		return StoredFile{}, errors.New("object store is not configured")
	}
	r := &progressReader{
		r:      bytes.NewReader(req.File.Data),
		total:  int64(len(req.File.Data)),
		report: report,
	}
	mimeType := ResolveType(req.File.Name, req.File.MimeType)
	key, size, storedType, err := t.Store.Save(ctx, req.SessionID, req.File.Name, mimeType, r)
	if err != nil {
		return StoredFile{}, err
	}
	return StoredFile{StorageKey: key, MimeType: storedType, SizeBytes: size}, nil
}

func (t StoreTransport) Discard(ctx context.Context, stored StoredFile) error {
	if t.Store == nil || stored.StorageKey == "" {
		return nil
	}
	return t.Store.Delete(ctx, stored.StorageKey)
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 && n > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 99 {
			pct = 99
		}
		if pct > p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}
