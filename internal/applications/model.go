package applications

import "time"

// Status is where an application is in the review workflow.
type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusPendingReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Application is a company's request to join the platform.
type Application struct {
	ID                 string
	SessionID          string
	CompanyName        string
	RegistrationNumber string
	Industry           string
	CompanySize        string
	Website            string
	Address            string
	AdminName          string
	AdminEmail         string
	AdminPhone         string
	JobTitle           string
	PasswordHash       string
	Status             Status
	ReviewNote         string
	Documents          []Document
	CreatedAt          time.Time
	ReviewedAt         *time.Time
}

// Document is a supporting file attached to an application.
type Document struct {
	ID            string
	ApplicationID string
	FileName      string
	MimeType      string
	SizeBytes     int64
	StorageKey    string
	PageCount     int
	WordCount     int
	InspectedAt   *time.Time
	CreatedAt     time.Time
}
