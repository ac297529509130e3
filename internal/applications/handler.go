package applications

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"signup-backend/internal/shared/server/respond"
)

// Handler exposes the super-admin review endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches review routes to an admin-only router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/admin/applications", h.list)
	rg.GET("/admin/applications/:id", h.get)
	rg.POST("/admin/applications/:id/approve", h.approve)
	rg.POST("/admin/applications/:id/reject", h.reject)
}

type reviewRequest struct {
	Note string `json:"note"`
}

type documentResponse struct {
	ID          string     `json:"documentId"`
	FileName    string     `json:"fileName"`
	MimeType    string     `json:"mimeType"`
	SizeBytes   int64      `json:"sizeBytes"`
	Stored      bool       `json:"stored"`
	PageCount   int        `json:"pageCount"`
	WordCount   int        `json:"wordCount"`
	InspectedAt *time.Time `json:"inspectedAt,omitempty"`
}

type applicationResponse struct {
	ID                 string             `json:"applicationId"`
	CompanyName        string             `json:"companyName"`
	RegistrationNumber string             `json:"registrationNumber"`
	Industry           string             `json:"industry"`
	CompanySize        string             `json:"companySize"`
	Website            string             `json:"website"`
	Address            string             `json:"address"`
	AdminName          string             `json:"adminName"`
	AdminEmail         string             `json:"adminEmail"`
	AdminPhone         string             `json:"adminPhone"`
	JobTitle           string             `json:"jobTitle"`
	Status             Status             `json:"status"`
	ReviewNote         string             `json:"reviewNote,omitempty"`
	Documents          []documentResponse `json:"documents,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	ReviewedAt         *time.Time         `json:"reviewedAt,omitempty"`
}

func toResponse(app Application) applicationResponse {
	resp := applicationResponse{
		ID:                 app.ID,
		CompanyName:        app.CompanyName,
		RegistrationNumber: app.RegistrationNumber,
		Industry:           app.Industry,
		CompanySize:        app.CompanySize,
		Website:            app.Website,
		Address:            app.Address,
		AdminName:          app.AdminName,
		AdminEmail:         app.AdminEmail,
		AdminPhone:         app.AdminPhone,
		JobTitle:           app.JobTitle,
		Status:             app.Status,
		ReviewNote:         app.ReviewNote,
		CreatedAt:          app.CreatedAt,
		ReviewedAt:         app.ReviewedAt,
	}
	for _, d := range app.Documents {
		resp.Documents = append(resp.Documents, documentResponse{
			ID:          d.ID,
			FileName:    d.FileName,
			MimeType:    d.MimeType,
			SizeBytes:   d.SizeBytes,
			Stored:      d.StorageKey != "",
			PageCount:   d.PageCount,
			WordCount:   d.WordCount,
			InspectedAt: d.InspectedAt,
		})
	}
	return resp
}

func (h *Handler) list(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	apps, err := h.Svc.List(c.Request.Context(), Status(c.Query("status")), limit, offset)
	if err != nil {
		writeError(c, err, "failed to list applications")
		return
	}
	items := make([]applicationResponse, 0, len(apps))
	for _, app := range apps {
		items = append(items, toResponse(app))
	}
	respond.OK(c, gin.H{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set("applicationId", id)
	app, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to fetch application")
		return
	}
	respond.OK(c, toResponse(app))
}

func (h *Handler) approve(c *gin.Context) {
	h.review(c, h.Svc.Approve, StatusApproved)
}

func (h *Handler) reject(c *gin.Context) {
	h.review(c, h.Svc.Reject, StatusRejected)
}

func (h *Handler) review(c *gin.Context, op func(ctx context.Context, id, note string) (Application, error), to Status) {
	id := c.Param("id")
	c.Set("applicationId", id)

	var req reviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}

	app, err := op(c.Request.Context(), id, req.Note)
	if err != nil {
		writeError(c, err, "failed to review application")
		return
	}
	c.Set("statusTransition", "->"+string(to))
	respond.OK(c, toResponse(app))
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ErrInvalidTransition):
		respond.Error(c, http.StatusConflict, "invalid_transition", "application has already been reviewed", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
