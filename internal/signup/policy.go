package signup

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MaxFileBytes is the per-file size ceiling.
const MaxFileBytes = 10 << 20

var allowedContentTypes = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

// Policy decides which candidates are accepted at intake.
type Policy struct {
	MaxBytes int64
}

// DefaultPolicy accepts PDF and Word documents up to 10 MB.
func DefaultPolicy() Policy {
	return Policy{MaxBytes: MaxFileBytes}
}

// Check returns nil if c is acceptable, otherwise the rejection.
func (p Policy) Check(c Candidate) *RejectedFile {
	limit := p.MaxBytes
	if limit <= 0 {
		limit = MaxFileBytes
	}
	if ResolveType(c.Name, c.MimeType) == "" {
		return &RejectedFile{
			Name:    c.Name,
			Reason:  RejectType,
			Message: fmt.Sprintf("%s is not a PDF or Word document", c.Name),
		}
	}
	if candidateSize(c) > limit {
		return &RejectedFile{
			Name:    c.Name,
			Reason:  RejectSize,
			Message: fmt.Sprintf("%s exceeds the %d MB limit", c.Name, limit>>20),
		}
	}
	return nil
}

// ResolveType returns the canonical MIME type for an allowed document or ""
// if the file is not allowed. A missing or generic declared type falls back to
// the file extension.
func ResolveType(name, declared string) string {
	mimeType := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if _, ok := allowedContentTypes[mimeType]; ok {
		return mimeType
	}
	if mimeType != "" && mimeType != "application/octet-stream" {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(name))
	for t, e := range allowedContentTypes {
		if e == ext {
			return t
		}
	}
	return ""
}

func candidateSize(c Candidate) int64 {
	if c.SizeBytes > 0 {
		return c.SizeBytes
	}
	return int64(len(c.Data))
}
