package licenses_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"signup-backend/internal/licenses"
	"signup-backend/internal/shared/auth"
	"signup-backend/internal/shared/server/middleware"
)

func setupRouter(t *testing.T) (*gin.Engine, *licenses.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", "test-secret")

	svc := licenses.NewService()
	if _, err := svc.Provision(context.Background(), "co-1", 2); err != nil {
		t.Fatalf("provision: %v", err)
	}
	router := gin.New()
	group := router.Group("/api/v1", middleware.Auth(), middleware.RequireRole(auth.RoleCorporateAdmin, auth.RoleSuperAdmin))
	licenses.NewHandler(svc).RegisterRoutes(group)
	return router, svc
}

func token(t *testing.T, role, companyID string) string {
	t.Helper()
	tok, err := auth.SignJWT(auth.Claims{Role: role, CompanyID: companyID, RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func call(t *testing.T, router *gin.Engine, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestCorporateAdminSeesOwnUsage(t *testing.T) {
	router, _ := setupRouter(t)
	tok := token(t, auth.RoleCorporateAdmin, "co-1")

	resp := call(t, router, http.MethodGet, "/api/v1/licenses/usage", tok, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		CompanyID string `json:"companyId"`
		Seats     int    `json:"seats"`
		Available int    `json:"available"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.CompanyID != "co-1" || body.Seats != 2 || body.Available != 2 {
		t.Fatalf("unexpected body %+v", body)
	}

	resp = call(t, router, http.MethodGet, "/api/v1/licenses/usage?companyId=co-2", tok, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another company, got %d", resp.Code)
	}
}

func TestAssignUntilLimit(t *testing.T) {
	router, _ := setupRouter(t)
	tok := token(t, auth.RoleCorporateAdmin, "co-1")

	resp := call(t, router, http.MethodPost, "/api/v1/licenses/assign", tok, map[string]int{"seats": 2})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	resp = call(t, router, http.MethodPost, "/api/v1/licenses/assign", tok, map[string]int{"seats": 1})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	resp = call(t, router, http.MethodPost, "/api/v1/licenses/release", tok, map[string]int{"seats": 1})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestSuperAdminMustNameCompany(t *testing.T) {
	router, _ := setupRouter(t)
	tok := token(t, auth.RoleSuperAdmin, "")

	resp := call(t, router, http.MethodGet, "/api/v1/licenses/usage", tok, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	resp = call(t, router, http.MethodGet, "/api/v1/licenses/usage?companyId=co-1", tok, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	resp = call(t, router, http.MethodGet, "/api/v1/licenses/usage?companyId=co-9", tok, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
