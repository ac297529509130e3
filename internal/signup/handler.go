package signup

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"signup-backend/internal/shared/server/respond"
)

const maxFilesPerBatch = 10

// Handler exposes signup sessions over HTTP.
type Handler struct {
	Registry *Registry
	Policy   Policy
}

// NewHandler constructs a Handler.
func NewHandler(reg *Registry, policy Policy) *Handler {
	if policy.MaxBytes <= 0 {
		policy = DefaultPolicy()
	}
	return &Handler{Registry: reg, Policy: policy}
}

// RegisterRoutes attaches signup routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.create)
	rg.GET("/sessions/:id", h.get)
	rg.DELETE("/sessions/:id", h.close)
	rg.PATCH("/sessions/:id/fields", h.updateFields)
	rg.POST("/sessions/:id/next", h.next)
	rg.POST("/sessions/:id/back", h.back)
	rg.POST("/sessions/:id/files", h.uploadFiles)
	rg.DELETE("/sessions/:id/files/:fileId", h.removeFile)
	rg.POST("/sessions/:id/submit", h.submit)
}

func (h *Handler) create(c *gin.Context) {
	form := h.Registry.Create()
	c.Set("sessionId", form.ID())
	h.writeSnapshot(c, http.StatusCreated, form)
}

func (h *Handler) get(c *gin.Context) {
	form, ok := h.session(c)
	if !ok {
		return
	}
	h.writeSnapshot(c, http.StatusOK, form)
}

func (h *Handler) close(c *gin.Context) {
	id := c.Param("id")
	c.Set("sessionId", id)
	if err := h.Registry.Close(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) updateFields(c *gin.Context) {
	form, ok := h.session(c)
	if !ok {
		return
	}
	var patch FieldPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if err := form.Update(patch); err != nil {
		writeError(c, err)
		return
	}
	h.writeSnapshot(c, http.StatusOK, form)
}

func (h *Handler) next(c *gin.Context) {
	form, ok := h.session(c)
	if !ok {
		return
	}
	if err := form.Next(); err != nil {
		writeError(c, err)
		return
	}
	h.writeSnapshot(c, http.StatusOK, form)
}

func (h *Handler) back(c *gin.Context) {
	form, ok := h.session(c)
	if !ok {
		return
	}
	if err := form.Back(); err != nil {
		writeError(c, err)
		return
	}
	h.writeSnapshot(c, http.StatusOK, form)
}

func (h *Handler) uploadFiles(c *gin.Context) {
	form, ok := h.session(c)
	if !ok {
		return
	}

	limit := h.Policy.MaxBytes*maxFilesPerBatch + 1<<20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	mf, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "upload batch is too large", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "multipart form with files is required", nil)
		return
	}
	headers := mf.File["files"]
	if len(headers) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "files is required", nil)
		return
	}
	if len(headers) > maxFilesPerBatch {
		respond.Error(c, http.StatusBadRequest, "validation_error", "too many files in one batch", gin.H{"max": maxFilesPerBatch})
		return
	}

	candidates := make([]Candidate, 0, len(headers))
	for _, fh := range headers {
		cand, err := h.readCandidate(fh)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", gin.H{"name": fh.Filename})
			return
		}
		candidates = append(candidates, cand)
	}

	res, err := form.Intake(candidates)
	if err != nil {
		writeError(c, err)
		return
	}
	snap, err := form.Snapshot()
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Accepted == nil {
		res.Accepted = []UploadedFile{}
	}
	if res.Rejected == nil {
		res.Rejected = []RejectedFile{}
	}
	respond.OK(c, gin.H{
		"accepted": res.Accepted,
		"rejected": res.Rejected,
		"session":  snap,
	})
}

// readCandidate skips reading files that the policy will reject anyway.
func (h *Handler) readCandidate(fh *multipart.FileHeader) (Candidate, error) {
	cand := Candidate{
		Name:      strings.TrimSpace(fh.Filename),
		MimeType:  fh.Header.Get("Content-Type"),
		SizeBytes: fh.Size,
	}
	if h.Policy.Check(cand) != nil {
		return cand, nil
	}
	file, err := fh.Open()
	if err != nil {
		return Candidate{}, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return Candidate{}, err
	}
	cand.Data = data
	cand.SizeBytes = int64(len(data))
	return cand, nil
}

func (h *Handler) removeFile(c *gin.Context) {
	form, ok := h.session(c)
	if !ok {
		return
	}
	fileID := c.Param("fileId")
	c.Set("fileId", fileID)
	if err := form.Remove(fileID); err != nil {
		writeError(c, err)
		return
	}
	h.writeSnapshot(c, http.StatusOK, form)
}

func (h *Handler) submit(c *gin.Context) {
	form, ok := h.session(c)
	if !ok {
		return
	}
	if err := form.Submit(); err != nil {
		writeError(c, err)
		return
	}
	c.Set("statusTransition", "idle->submitting")
	snap, err := form.Snapshot()
	if err != nil {
		writeError(c, err)
		return
	}
	respond.Accepted(c, snap)
}

func (h *Handler) session(c *gin.Context) (*Form, bool) {
	id := c.Param("id")
	c.Set("sessionId", id)
	form, err := h.Registry.Get(id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return form, true
}

func (h *Handler) writeSnapshot(c *gin.Context, status int, form *Form) {
	snap, err := form.Snapshot()
	if err != nil {
		writeError(c, err)
		return
	}
	respond.JSON(c, status, snap)
}

func writeError(c *gin.Context, err error) {
	var fe *FormError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ErrFormClosed):
		respond.Error(c, http.StatusGone, "session_closed", err.Error(), nil)
	case errors.Is(err, ErrFileNotFound):
		respond.Error(c, http.StatusNotFound, "file_not_found", err.Error(), nil)
	case errors.Is(err, ErrSubmissionInFlight):
		respond.Error(c, http.StatusConflict, "submission_in_progress", err.Error(), nil)
	case errors.Is(err, ErrFormSubmitted):
		respond.Error(c, http.StatusConflict, "already_submitted", err.Error(), nil)
	case errors.Is(err, ErrPasswordMismatch):
		respond.Error(c, http.StatusUnprocessableEntity, "password_mismatch", err.Error(), nil)
	case errors.Is(err, ErrNoDocuments):
		respond.Error(c, http.StatusUnprocessableEntity, "no_documents", err.Error(), nil)
	case errors.Is(err, ErrUploadsIncomplete):
		respond.Error(c, http.StatusUnprocessableEntity, "uploads_incomplete", err.Error(), nil)
	case errors.As(err, &fe) && fe.Kind == KindValidation:
		respond.Error(c, http.StatusUnprocessableEntity, "validation_error", fe.Err.Error(), gin.H{"fields": fe.Fields})
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "signup request failed", nil)
	}
}
