package signup

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrInvalidFields      = errors.New("required fields are missing or invalid")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrNoDocuments        = errors.New("please upload at least one supporting document")
	ErrUploadsIncomplete  = errors.New("please wait for all files to finish uploading")
	ErrFileNotFound       = errors.New("file not found")
	ErrSubmissionInFlight = errors.New("submission already in progress")
	ErrFormSubmitted      = errors.New("application already submitted")
	ErrFormClosed         = errors.New("signup session closed")
	ErrSessionNotFound    = errors.New("signup session not found")
)

// Kind groups form errors the way the UI reports them.
type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindPrerequisite     Kind = "prerequisite_error"
	KindIncompleteUpload Kind = "incomplete_upload"
	KindFileRejected     Kind = "file_rejected"
	KindSubmissionFailed Kind = "submission_failed"
)

// FormError is a recoverable, user-facing error. Err is one of the package
// sentinels so callers can match with errors.Is.
type FormError struct {
	Kind   Kind
	Err    error
	Fields map[string]string
}

func (e *FormError) Error() string {
	if len(e.Fields) == 0 {
		return e.Err.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return e.Err.Error() + ": " + strings.Join(names, ", ")
}

func (e *FormError) Unwrap() error { return e.Err }

// KindOf reports the kind of a FormError in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *FormError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// RejectReason says why a candidate was refused at intake.
type RejectReason string

const (
	RejectType RejectReason = "type"
	RejectSize RejectReason = "size"
)

// RejectedFile is a candidate that failed the upload policy.
type RejectedFile struct {
	Name    string       `json:"name"`
	Reason  RejectReason `json:"reason"`
	Message string       `json:"message"`
}

// SubmissionError wraps a failure from the external submit operation.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return "submission failed: " + e.Err.Error() }

func (e *SubmissionError) Unwrap() error { return e.Err }
