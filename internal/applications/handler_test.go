package applications_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"signup-backend/internal/applications"
	"signup-backend/internal/licenses"
	"signup-backend/internal/shared/auth"
	"signup-backend/internal/shared/server/middleware"
	"signup-backend/internal/signup"
)

func setupRouter(t *testing.T) (*gin.Engine, *applications.Service, *licenses.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", "test-secret")

	lic := licenses.NewService()
	svc := applications.NewService(applications.NewMemoryRepo(), nil, nil, lic, 10)
	router := gin.New()
	group := router.Group("/api/v1", middleware.Auth(), middleware.RequireRole(auth.RoleSuperAdmin))
	applications.NewHandler(svc).RegisterRoutes(group)
	return router, svc, lic
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := auth.SignJWT(auth.Claims{Role: role, RegisteredClaims: jwt.RegisteredClaims{Subject: "admin-1"}})
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

func seed(t *testing.T, svc *applications.Service, sessionID string) applications.Application {
	t.Helper()
	app, err := svc.Submit(context.Background(), signup.Submission{
		SessionID: sessionID,
		Record: signup.FormRecord{
			CompanyName: "Acme",
			AdminEmail:  "sam@acme.example",
			Password:    "s3cret-pass",
		},
		Files: []signup.UploadedFile{{ID: "f1", Name: "cert.pdf", MimeType: "application/pdf", SizeBytes: 100, StorageKey: "k1"}},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return app
}

func TestListAndGetApplications(t *testing.T) {
	router, svc, _ := setupRouter(t)
	app := seed(t, svc, "sess-1")
	tok := token(t, auth.RoleSuperAdmin)

	resp := call(t, router, http.MethodGet, "/api/v1/admin/applications?status=submitted", tok, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var list struct {
		Items []struct {
			ID     string `json:"applicationId"`
			Status string `json:"status"`
		} `json:"items"`
		Limit int `json:"limit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != app.ID || list.Limit != 20 {
		t.Fatalf("unexpected list %+v", list)
	}

	resp = call(t, router, http.MethodGet, "/api/v1/admin/applications/"+app.ID, tok, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "$2a$") || strings.Contains(strings.ToLower(resp.Body.String()), "password") {
		t.Fatalf("password hash leaked: %s", resp.Body.String())
	}
	if strings.Contains(resp.Body.String(), `"k1"`) {
		t.Fatalf("storage key leaked: %s", resp.Body.String())
	}

	resp = call(t, router, http.MethodGet, "/api/v1/admin/applications?status=bogus", tok, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", resp.Code)
	}
	resp = call(t, router, http.MethodGet, "/api/v1/admin/applications/missing", tok, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestApproveThenRejectConflicts(t *testing.T) {
	router, svc, lic := setupRouter(t)
	app := seed(t, svc, "sess-1")
	tok := token(t, auth.RoleSuperAdmin)

	resp := call(t, router, http.MethodPost, "/api/v1/admin/applications/"+app.ID+"/approve", tok, map[string]string{"note": "verified"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		Status     string `json:"status"`
		ReviewNote string `json:"reviewNote"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "approved" || body.ReviewNote != "verified" {
		t.Fatalf("unexpected body %+v", body)
	}
	if usage, err := lic.Get(context.Background(), app.ID); err != nil || usage.Seats != 10 {
		t.Fatalf("expected 10 provisioned seats, got %+v %v", usage, err)
	}

	resp = call(t, router, http.MethodPost, "/api/v1/admin/applications/"+app.ID+"/reject", tok, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestReviewRequiresSuperAdmin(t *testing.T) {
	router, svc, _ := setupRouter(t)
	app := seed(t, svc, "sess-1")

	resp := call(t, router, http.MethodPost, "/api/v1/admin/applications/"+app.ID+"/approve", token(t, auth.RoleCorporateAdmin), nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}
