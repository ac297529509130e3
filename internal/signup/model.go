package signup

import (
	"fmt"
	"strings"
)

// Step is the page of the two-step signup form.
type Step int

const (
	StepOrganization Step = 1
	StepAdmin        Step = 2
)

func (s Step) String() string {
	switch s {
	case StepOrganization:
		return "organization"
	case StepAdmin:
		return "admin"
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// MarshalText encodes the step as its lowercase name.
func (s Step) MarshalText() ([]byte, error) {
	switch s {
	case StepOrganization, StepAdmin:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("unknown step %d", int(s))
}

// UnmarshalText parses a step name.
func (s *Step) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "organization":
		*s = StepOrganization
	case "admin":
		*s = StepAdmin
	default:
		return fmt.Errorf("unknown step %q", b)
	}
	return nil
}

// FileStatus is the upload state of a tracked file.
type FileStatus int

const (
	FileIdle FileStatus = iota
	FileUploading
	FileSuccess
	FileError
)

var fileStatusNames = [...]string{"idle", "uploading", "success", "error"}

func (s FileStatus) String() string {
	if s < 0 || int(s) >= len(fileStatusNames) {
		return fmt.Sprintf("FileStatus(%d)", int(s))
	}
	return fileStatusNames[s]
}

// MarshalText encodes the status as its lowercase name.
func (s FileStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a lowercase status name.
func (s *FileStatus) UnmarshalText(b []byte) error {
	for i, name := range fileStatusNames {
		if strings.EqualFold(string(b), name) {
			*s = FileStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown file status %q", b)
}

// SubmissionStatus tracks the final submit call.
type SubmissionStatus int

const (
	SubmissionIdle SubmissionStatus = iota
	Submitting
	SubmissionSucceeded
	SubmissionFailed
)

var submissionNames = [...]string{"idle", "submitting", "success", "error"}

func (s SubmissionStatus) String() string {
	if s < 0 || int(s) >= len(submissionNames) {
		return fmt.Sprintf("SubmissionStatus(%d)", int(s))
	}
	return submissionNames[s]
}

// MarshalText encodes the status as its lowercase name.
func (s SubmissionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a lowercase status name.
func (s *SubmissionStatus) UnmarshalText(b []byte) error {
	for i, name := range submissionNames {
		if strings.EqualFold(string(b), name) {
			*s = SubmissionStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown submission status %q", b)
}

// FormRecord holds the organization (step 1) and admin contact (step 2) fields.
type FormRecord struct {
	CompanyName        string `json:"companyName" validate:"required"`
	RegistrationNumber string `json:"registrationNumber" validate:"required"`
	Industry           string `json:"industry" validate:"required"`
	CompanySize        string `json:"companySize" validate:"required"`
	Website            string `json:"website" validate:"required,url|fqdn"`
	Address            string `json:"address" validate:"required"`

	AdminName       string `json:"adminName" validate:"required"`
	AdminEmail      string `json:"adminEmail" validate:"required,email"`
	AdminPhone      string `json:"adminPhone" validate:"required"`
	JobTitle        string `json:"jobTitle" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required,max=72"`
	ConfirmPassword string `json:"confirmPassword,omitempty" validate:"required"`
}

// redacted returns a copy safe to echo back to clients.
func (r FormRecord) redacted() FormRecord {
	r.Password = ""
	r.ConfirmPassword = ""
	return r
}

// FieldPatch sets any subset of FormRecord; nil fields are left untouched.
type FieldPatch struct {
	CompanyName        *string `json:"companyName"`
	RegistrationNumber *string `json:"registrationNumber"`
	Industry           *string `json:"industry"`
	CompanySize        *string `json:"companySize"`
	Website            *string `json:"website"`
	Address            *string `json:"address"`
	AdminName          *string `json:"adminName"`
	AdminEmail         *string `json:"adminEmail"`
	AdminPhone         *string `json:"adminPhone"`
	JobTitle           *string `json:"jobTitle"`
	Password           *string `json:"password"`
	ConfirmPassword    *string `json:"confirmPassword"`
}

func (p FieldPatch) apply(r *FormRecord) {
	set := func(dst *string, src *string, trim bool) {
		if src == nil {
			return
		}
		if trim {
			*dst = strings.TrimSpace(*src)
			return
		}
		*dst = *src
	}
	set(&r.CompanyName, p.CompanyName, true)
	set(&r.RegistrationNumber, p.RegistrationNumber, true)
	set(&r.Industry, p.Industry, true)
	set(&r.CompanySize, p.CompanySize, true)
	set(&r.Website, p.Website, true)
	set(&r.Address, p.Address, true)
	set(&r.AdminName, p.AdminName, true)
	set(&r.AdminEmail, p.AdminEmail, true)
	set(&r.AdminPhone, p.AdminPhone, true)
	set(&r.JobTitle, p.JobTitle, true)
	set(&r.Password, p.Password, false)
	set(&r.ConfirmPassword, p.ConfirmPassword, false)
}

// UploadedFile is a file accepted into the form's tracked collection.
type UploadedFile struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Size       string     `json:"size"`
	SizeBytes  int64      `json:"sizeBytes"`
	MimeType   string     `json:"type"`
	Status     FileStatus `json:"status"`
	Progress   int        `json:"progress"`
	StorageKey string     `json:"-"`
}

// Candidate is a file offered to the form, before policy checks.
type Candidate struct {
	Name      string
	MimeType  string
	SizeBytes int64
	Data      []byte
}

// NoticeKind is the severity of a transient message.
type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeWarning NoticeKind = "warning"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient inline message that clears itself after a TTL.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Code    string     `json:"code"`
	Message string     `json:"message"`
}

// Snapshot is a point-in-time copy of the form for rendering.
type Snapshot struct {
	SessionID     string           `json:"sessionId"`
	Step          Step             `json:"step"`
	Record        FormRecord       `json:"record"`
	PasswordSet   bool             `json:"passwordSet"`
	Files         []UploadedFile   `json:"files"`
	Submission    SubmissionStatus `json:"submission"`
	ApplicationID string           `json:"applicationId,omitempty"`
	Notice        *Notice          `json:"notice,omitempty"`
	CanSubmit     bool             `json:"canSubmit"`
}

// File returns the tracked file with id, if present.
func (s Snapshot) File(id string) (UploadedFile, bool) {
	for _, f := range s.Files {
		if f.ID == id {
			return f, true
		}
	}
	return UploadedFile{}, false
}

// ChangeType names the kind of state mutation an observer is told about.
type ChangeType string

const (
	ChangeFileAdded    ChangeType = "file_added"
	ChangeFileProgress ChangeType = "file_progress"
	ChangeFileStatus   ChangeType = "file_status"
	ChangeFileRemoved  ChangeType = "file_removed"
	ChangeStep         ChangeType = "step"
	ChangeFields       ChangeType = "fields"
	ChangeSubmission   ChangeType = "submission"
	ChangeNotice       ChangeType = "notice"
)

// Change describes a single mutation. File is set for file changes; Err is
// set when a submission fails.
type Change struct {
	Type       ChangeType
	File       UploadedFile
	Step       Step
	Submission SubmissionStatus
	Notice     *Notice
	Err        error
}

// Submission is what the form hands to the external submit operation.
type Submission struct {
	SessionID string
	Record    FormRecord
	Files     []UploadedFile
}

// Receipt is returned by a successful submission.
type Receipt struct {
	ApplicationID string
}
