package licenses

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"signup-backend/internal/shared/auth"
	"signup-backend/internal/shared/server/middleware"
	"signup-backend/internal/shared/server/respond"
)

// Handler exposes license usage endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches license routes to an authenticated router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/licenses/usage", h.getUsage)
	rg.POST("/licenses/assign", h.assign)
	rg.POST("/licenses/release", h.release)
}

type seatsRequest struct {
	CompanyID string `json:"companyId"`
	Seats     int    `json:"seats"`
}

func (h *Handler) getUsage(c *gin.Context) {
	companyID, ok := resolveCompany(c, c.Query("companyId"))
	if !ok {
		return
	}
	u, err := h.Svc.Get(c.Request.Context(), companyID)
	if err != nil {
		writeError(c, err, "failed to fetch license usage")
		return
	}
	respond.OK(c, toResponse(u))
}

func (h *Handler) assign(c *gin.Context) {
	h.changeSeats(c, h.Svc.Assign, "failed to assign seats")
}

func (h *Handler) release(c *gin.Context) {
	h.changeSeats(c, h.Svc.Release, "failed to release seats")
}

func (h *Handler) changeSeats(c *gin.Context, op func(ctx context.Context, companyID string, n int) (Usage, error), failMsg string) {
	var req seatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if req.Seats <= 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "seats must be positive", nil)
		return
	}
	companyID, ok := resolveCompany(c, req.CompanyID)
	if !ok {
		return
	}
	u, err := op(c.Request.Context(), companyID, req.Seats)
	if err != nil {
		writeError(c, err, failMsg)
		return
	}
	respond.OK(c, toResponse(u))
}

// resolveCompany pins corporate admins to their own company; super admins must name one.
func resolveCompany(c *gin.Context, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	switch middleware.RoleFromContext(c) {
	case auth.RoleCorporateAdmin:
		own := middleware.CompanyIDFromContext(c)
		if own == "" {
			respond.Error(c, http.StatusForbidden, "forbidden", "no company associated with this account", nil)
			return "", false
		}
		if requested != "" && requested != own {
			respond.Error(c, http.StatusForbidden, "forbidden", "cannot access another company's licenses", nil)
			return "", false
		}
		return own, true
	case auth.RoleSuperAdmin:
		if requested == "" {
			respond.Error(c, http.StatusBadRequest, "validation_error", "companyId is required", nil)
			return "", false
		}
		return requested, true
	default:
		respond.Error(c, http.StatusForbidden, "forbidden", "insufficient role", nil)
		return "", false
	}
}

func toResponse(u Usage) gin.H {
	return gin.H{
		"companyId":   u.CompanyID,
		"seats":       u.Seats,
		"used":        u.Used,
		"available":   u.Available(),
		"periodStart": u.PeriodStart,
		"periodEnd":   u.PeriodEnd,
	}
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ErrLimitReached):
		respond.Error(c, http.StatusConflict, "limit_reached", err.Error(), nil)
	case errors.Is(err, ErrExpired):
		respond.Error(c, http.StatusConflict, "license_expired", err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
