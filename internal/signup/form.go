package signup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"signup-backend/internal/shared/metrics"
	"signup-backend/internal/shared/telemetry"
	"signup-backend/internal/shared/util"
)

const (
	DefaultNoticeTTL = 5 * time.Second
	discardTimeout   = 10 * time.Second
	submitTimeout    = time.Minute
)

const rejectedFilesMessage = "Some files were rejected. Only PDF and Word documents up to 10MB are allowed."

// Submitter is the external "submit application" operation.
type Submitter interface {
	SubmitApplication(ctx context.Context, sub Submission) (Receipt, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, sub Submission) (Receipt, error)

func (fn SubmitterFunc) SubmitApplication(ctx context.Context, sub Submission) (Receipt, error) {
	return fn(ctx, sub)
}

// Options configures a Form.
type Options struct {
	SessionID string
	Transport Transport
	Submitter Submitter
	Policy    Policy
	// NoticeTTL is how long a notice stays visible. Zero means DefaultNoticeTTL.
	NoticeTTL time.Duration
	// Observer is called from the owner goroutine after every mutation. It must
	// not call back into the Form.
	Observer func(Change)
}

// IntakeResult lists what happened to each candidate in a batch.
type IntakeResult struct {
	Accepted []UploadedFile `json:"accepted"`
	Rejected []RejectedFile `json:"rejected"`
}

// Form is one applicant's signup session. All state is owned by a single
// goroutine; methods send it commands and are safe for concurrent use.
type Form struct {
	opts Options

	cmds     chan func(*state)
	loopDone chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	tasks    sync.WaitGroup
	closed   sync.Once
}

// state is touched only by the owner goroutine.
type state struct {
	f *Form

	step          Step
	record        FormRecord
	files         map[string]*UploadedFile
	order         []string
	cancels       map[string]context.CancelFunc
	submission    SubmissionStatus
	applicationID string

	notice      *Notice
	noticeSeq   uint64
	noticeTimer *time.Timer
}

// New starts a form's owner goroutine. Call Close to release it.
func New(opts Options) *Form {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Transport == nil {
		opts.Transport = SimulatedTransport{}
	}
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = DefaultNoticeTTL
	}
	if opts.Policy.MaxBytes <= 0 {
		opts.Policy = DefaultPolicy()
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Form{
		opts:     opts,
		cmds:     make(chan func(*state)),
		loopDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	s := &state{
		f:       f,
		step:    StepOrganization,
		files:   make(map[string]*UploadedFile),
		cancels: make(map[string]context.CancelFunc),
	}
	go f.run(s)
	return f
}

// ID returns the session id.
func (f *Form) ID() string { return f.opts.SessionID }

func (f *Form) run(s *state) {
	defer close(f.loopDone)
	for {
		select {
		case fn := <-f.cmds:
			fn(s)
		case <-f.ctx.Done():
			s.teardown()
			return
		}
	}
}

// do runs fn on the owner goroutine and waits for it.
func (f *Form) do(fn func(*state)) error {
	done := make(chan struct{})
	select {
	case f.cmds <- func(s *state) { fn(s); close(done) }:
	case <-f.ctx.Done():
		return ErrFormClosed
	}
	<-done
	return nil
}

// post delivers an event from a background task. It is dropped once the form
// closes; the result reports whether the owner received it.
func (f *Form) post(fn func(*state)) bool {
	select {
	case f.cmds <- fn:
		return true
	case <-f.ctx.Done():
		return false
	}
}

// Intake filters a batch of candidates and starts an upload for every accepted
// file. Rejected files never block the rest of the batch.
func (f *Form) Intake(files []Candidate) (IntakeResult, error) {
	var (
		res IntakeResult
		err error
	)
	if derr := f.do(func(s *state) {
		if err = s.mutable(); err != nil {
			return
		}
		for _, c := range files {
			if rej := f.opts.Policy.Check(c); rej != nil {
				res.Rejected = append(res.Rejected, *rej)
				continue
			}
			file := s.add(c)
			s.startUpload(file, c)
			res.Accepted = append(res.Accepted, *file)
		}
		if len(res.Rejected) > 0 {
			metrics.AddFilesRejected(len(res.Rejected))
			s.setNotice(NoticeWarning, string(KindFileRejected), rejectedFilesMessage)
		}
	}); derr != nil {
		return IntakeResult{}, derr
	}
	return res, err
}

// Remove deletes a tracked file regardless of its status and cancels its upload.
func (f *Form) Remove(id string) error {
	var err error
	if derr := f.do(func(s *state) {
		if err = s.mutable(); err != nil {
			return
		}
		err = s.remove(id)
	}); derr != nil {
		return derr
	}
	return err
}

// Update applies a partial set of field values.
func (f *Form) Update(patch FieldPatch) error {
	var err error
	if derr := f.do(func(s *state) {
		if err = s.mutable(); err != nil {
			return
		}
		patch.apply(&s.record)
		s.emit(Change{Type: ChangeFields})
	}); derr != nil {
		return derr
	}
	return err
}

// Next moves to the admin step. It is a no-op on the last step.
func (f *Form) Next() error { return f.move(StepAdmin) }

// Back moves to the organization step. It is a no-op on the first step.
func (f *Form) Back() error { return f.move(StepOrganization) }

func (f *Form) move(to Step) error {
	var err error
	if derr := f.do(func(s *state) {
		if s.submission == SubmissionSucceeded {
			err = ErrFormSubmitted
			return
		}
		if s.step == to {
			return
		}
		s.step = to
		s.emit(Change{Type: ChangeStep, Step: to})
	}); derr != nil {
		return derr
	}
	return err
}

// Submit validates the form and, if it passes, starts the submission in the
// background. A nil return means the form moved to Submitting.
func (f *Form) Submit() error {
	var err error
	if derr := f.do(func(s *state) {
		err = s.submit()
	}); derr != nil {
		return derr
	}
	return err
}

// Snapshot returns a copy of the current state.
func (f *Form) Snapshot() (Snapshot, error) {
	var snap Snapshot
	if err := f.do(func(s *state) { snap = s.snapshot() }); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Close cancels every upload and the notice timer, and waits for background
// work to stop. A submission already in flight runs to completion first.
// Stored files of an unsubmitted form are discarded.
func (f *Form) Close() {
	f.closed.Do(func() {
		f.cancel()
		<-f.loopDone
		f.tasks.Wait()
	})
}

// Done is closed once the form has shut down.
func (f *Form) Done() <-chan struct{} { return f.loopDone }

func (s *state) mutable() error {
	switch s.submission {
	case SubmissionSucceeded:
		return ErrFormSubmitted
	case Submitting:
		return ErrSubmissionInFlight
	}
	return nil
}

func (s *state) add(c Candidate) *UploadedFile {
	size := candidateSize(c)
	file := &UploadedFile{
		ID:        uuid.NewString(),
		Name:      c.Name,
		Size:      util.FormatSize(size),
		SizeBytes: size,
		MimeType:  ResolveType(c.Name, c.MimeType),
		Status:    FileIdle,
	}
	s.files[file.ID] = file
	s.order = append(s.order, file.ID)
	s.emit(Change{Type: ChangeFileAdded, File: *file})
	return file
}

func (s *state) startUpload(file *UploadedFile, c Candidate) {
	f := s.f
	ctx, cancel := context.WithCancel(f.ctx)
	s.cancels[file.ID] = cancel
	file.Status = FileUploading
	s.emit(Change{Type: ChangeFileStatus, File: *file})
	metrics.IncUploadsStarted()

	req := UploadRequest{SessionID: f.opts.SessionID, FileID: file.ID, File: c}
	id := file.ID
	f.tasks.Add(1)
	go func() {
		defer f.tasks.Done()
		stored, err := f.opts.Transport.Upload(ctx, req, func(p int) {
			f.post(func(s *state) { s.progress(id, p) })
		})
		f.post(func(s *state) { s.finish(id, stored, err) })
	}()
}

func (s *state) progress(id string, p int) {
	file, ok := s.files[id]
	if !ok || file.Status != FileUploading {
		return
	}
	if p > 99 {
		p = 99
	}
	if p <= file.Progress {
		return
	}
	file.Progress = p
	s.emit(Change{Type: ChangeFileProgress, File: *file})
}

func (s *state) finish(id string, stored StoredFile, err error) {
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
	file, ok := s.files[id]
	if !ok {
		// Removed while in flight; whatever reached the store is an orphan.
		if err == nil {
			s.discard(stored)
		}
		return
	}
	if file.Status != FileUploading {
		return
	}
	if err != nil {
		file.Status = FileError
		metrics.IncUploadsFailed()
		telemetry.Warn("signup.upload.failed", map[string]any{
			"session_id": s.f.opts.SessionID,
			"file_id":    id,
			"error":      err.Error(),
		})
		s.emit(Change{Type: ChangeFileStatus, File: *file})
		s.setNotice(NoticeError, "upload_failed", "Upload failed for "+file.Name+". Remove it and try again.")
		return
	}
	file.Progress = 100
	file.Status = FileSuccess
	file.StorageKey = stored.StorageKey
	if stored.SizeBytes > 0 {
		file.SizeBytes = stored.SizeBytes
		file.Size = util.FormatSize(stored.SizeBytes)
	}
	metrics.IncUploadsCompleted()
	s.emit(Change{Type: ChangeFileStatus, File: *file})
}

func (s *state) remove(id string) error {
	file, ok := s.files[id]
	if !ok {
		return ErrFileNotFound
	}
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
	delete(s.files, id)
	for i, fid := range s.order {
		if fid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if file.StorageKey != "" {
		s.discard(StoredFile{StorageKey: file.StorageKey})
	}
	s.emit(Change{Type: ChangeFileRemoved, File: *file})
	return nil
}

func (s *state) discard(stored StoredFile) {
	if stored.StorageKey == "" {
		return
	}
	f := s.f
	f.tasks.Add(1)
	go func() {
		defer f.tasks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), discardTimeout)
		defer cancel()
		if err := f.opts.Transport.Discard(ctx, stored); err != nil {
			telemetry.Warn("signup.upload.discard_failed", map[string]any{
				"session_id":  f.opts.SessionID,
				"storage_key": stored.StorageKey,
				"error":       err.Error(),
			})
		}
	}()
}

func (s *state) submit() error {
	switch s.submission {
	case Submitting:
		return ErrSubmissionInFlight
	case SubmissionSucceeded:
		return ErrFormSubmitted
	}

	if err := ValidateRecord(s.record); err != nil {
		s.setNotice(NoticeError, string(KindValidation), "Please complete all required fields.")
		return err
	}
	if s.record.Password != s.record.ConfirmPassword {
		s.setNotice(NoticeError, string(KindValidation), ErrPasswordMismatch.Error())
		return &FormError{Kind: KindValidation, Err: ErrPasswordMismatch}
	}
	if len(s.order) == 0 {
		s.setNotice(NoticeError, string(KindPrerequisite), ErrNoDocuments.Error())
		return &FormError{Kind: KindPrerequisite, Err: ErrNoDocuments}
	}
	if !s.allUploaded() {
		s.setNotice(NoticeError, string(KindIncompleteUpload), ErrUploadsIncomplete.Error())
		return &FormError{Kind: KindIncompleteUpload, Err: ErrUploadsIncomplete}
	}

	s.submission = Submitting
	s.clearNotice()
	s.emit(Change{Type: ChangeSubmission, Submission: Submitting})

	f := s.f
	sub := Submission{
		SessionID: f.opts.SessionID,
		Record:    s.record,
		Files:     s.fileList(),
	}
	submitter := f.opts.Submitter
	f.tasks.Add(1)
	go func() {
		defer f.tasks.Done()
		// The submission outlives Close so a half-written application is never
		// abandoned; it is bounded by its own timeout instead.
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()

		start := time.Now()
		var (
			receipt Receipt
			err     error
		)
		if submitter == nil {
			err = errors.New("no submitter configured")
		} else {
			receipt, err = submitter.SubmitApplication(ctx, sub)
		}
		metrics.ObserveSubmitDurationMs(float64(time.Since(start).Milliseconds()))
		if err != nil {
			err = &SubmissionError{Err: err}
		}
		delivered := f.post(func(s *state) { s.completeSubmission(receipt, err) })
		if err != nil && !delivered {
			// The form closed while submitting and nobody can retry, so the
			// stored documents are orphans.
			f.discardFiles(ctx, sub.Files)
		}
	}()
	return nil
}

func (f *Form) discardFiles(ctx context.Context, files []UploadedFile) {
	for _, file := range files {
		if file.StorageKey == "" {
			continue
		}
		if err := f.opts.Transport.Discard(ctx, StoredFile{StorageKey: file.StorageKey}); err != nil {
			telemetry.Warn("signup.upload.discard_failed", map[string]any{
				"session_id":  f.opts.SessionID,
				"storage_key": file.StorageKey,
				"error":       err.Error(),
			})
		}
	}
}

func (s *state) allUploaded() bool {
	for _, id := range s.order {
		if s.files[id].Status != FileSuccess {
			return false
		}
	}
	return true
}

func (s *state) completeSubmission(receipt Receipt, err error) {
	if s.submission != Submitting {
		return
	}
	if err != nil {
		s.submission = SubmissionFailed
		metrics.IncApplicationsFailed()
		telemetry.Error("signup.submit.failed", map[string]any{
			"session_id": s.f.opts.SessionID,
			"error":      err.Error(),
		})
		s.emit(Change{Type: ChangeSubmission, Submission: SubmissionFailed, Err: err})
		s.setNotice(NoticeError, string(KindSubmissionFailed), "Submission failed. Please try again.")
		return
	}
	s.submission = SubmissionSucceeded
	s.applicationID = receipt.ApplicationID
	metrics.IncApplicationsSubmitted()
	telemetry.Info("signup.submit.succeeded", map[string]any{
		"session_id":     s.f.opts.SessionID,
		"application_id": receipt.ApplicationID,
		"files":          len(s.order),
	})
	s.emit(Change{Type: ChangeSubmission, Submission: SubmissionSucceeded})
}

func (s *state) setNotice(kind NoticeKind, code, msg string) {
	s.stopNoticeTimer()
	s.noticeSeq++
	seq := s.noticeSeq
	s.notice = &Notice{Kind: kind, Code: code, Message: msg}
	s.emit(Change{Type: ChangeNotice, Notice: s.notice})

	f := s.f
	s.noticeTimer = time.AfterFunc(f.opts.NoticeTTL, func() {
		f.post(func(s *state) {
			if s.noticeSeq == seq && s.notice != nil {
				s.notice = nil
				s.noticeTimer = nil
				s.emit(Change{Type: ChangeNotice})
			}
		})
	})
}

func (s *state) clearNotice() {
	s.stopNoticeTimer()
	if s.notice != nil {
		s.noticeSeq++
		s.notice = nil
		s.emit(Change{Type: ChangeNotice})
	}
}

func (s *state) stopNoticeTimer() {
	if s.noticeTimer != nil {
		s.noticeTimer.Stop()
		s.noticeTimer = nil
	}
}

func (s *state) teardown() {
	s.stopNoticeTimer()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	// Files of an in-flight or finished submission belong to the application.
	if s.submission == Submitting || s.submission == SubmissionSucceeded {
		return
	}
	for _, id := range s.order {
		if key := s.files[id].StorageKey; key != "" {
			s.discard(StoredFile{StorageKey: key})
		}
	}
}

func (s *state) fileList() []UploadedFile {
	out := make([]UploadedFile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.files[id])
	}
	return out
}

func (s *state) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:     s.f.opts.SessionID,
		Step:          s.step,
		Record:        s.record.redacted(),
		PasswordSet:   s.record.Password != "",
		Files:         s.fileList(),
		Submission:    s.submission,
		ApplicationID: s.applicationID,
		CanSubmit:     len(s.order) > 0 && s.allUploaded() && s.submission != Submitting && s.submission != SubmissionSucceeded,
	}
	if s.notice != nil {
		n := *s.notice
		snap.Notice = &n
	}
	return snap
}

func (s *state) emit(c Change) {
	if s.f.opts.Observer == nil {
		return
	}
	if c.Notice != nil {
		n := *c.Notice
		c.Notice = &n
	}
	s.f.opts.Observer(c)
}
