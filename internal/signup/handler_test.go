package signup_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signup-backend/internal/signup"
)

type testServer struct {
	router *gin.Engine
	reg    *signup.Registry
	subs   chan signup.Submission
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{subs: make(chan signup.Submission, 1)}
	ts.reg = signup.NewRegistry(signup.Options{
		Transport: signup.SimulatedTransport{Interval: time.Millisecond, Increment: 50},
		Submitter: signup.SubmitterFunc(func(_ context.Context, sub signup.Submission) (signup.Receipt, error) {
			ts.subs <- sub
			return signup.Receipt{ApplicationID: "app-42"}, nil
		}),
	}, time.Hour)
	t.Cleanup(ts.reg.Stop)

	ts.router = gin.New()
	signup.NewHandler(ts.reg, signup.DefaultPolicy()).RegisterRoutes(ts.router.Group("/api/v1/signup"))
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

func (ts *testServer) upload(t *testing.T, sessionID string, files ...upload) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/signup/sessions/"+sessionID+"/files", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v), resp.Body.String())
	return v
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func fullRecord() map[string]string {
	return map[string]string{
		"companyName":        "Acme Corp",
		"registrationNumber": "REG-001",
		"industry":           "Technology",
		"companySize":        "51-200",
		"website":            "acme.example.com",
		"address":            "1 Main St",
		"adminName":          "Jo Admin",
		"adminEmail":         "jo@acme.example.com",
		"adminPhone":         "+1 555 0100",
		"jobTitle":           "HR Lead",
		"password":           "s3cret-pass",
		"confirmPassword":    "s3cret-pass",
	}
}

func TestSignupHappyPath(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/signup/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.Code)
	created := decode[signup.Snapshot](t, resp)
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, signup.StepOrganization, created.Step)
	base := "/api/v1/signup/sessions/" + created.SessionID

	resp = ts.do(t, http.MethodPatch, base+"/fields", fullRecord())
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.do(t, http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, signup.StepAdmin, decode[signup.Snapshot](t, resp).Step)

	resp = ts.upload(t, created.SessionID,
		upload{name: "license.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4 body")},
		upload{name: "photo.png", contentType: "image/png", data: []byte("png")},
	)
	require.Equal(t, http.StatusOK, resp.Code)
	intake := decode[struct {
		Accepted []signup.UploadedFile `json:"accepted"`
		Rejected []signup.RejectedFile `json:"rejected"`
		Session  signup.Snapshot       `json:"session"`
	}](t, resp)
	require.Len(t, intake.Accepted, 1)
	require.Len(t, intake.Rejected, 1)
	assert.Equal(t, "photo.png", intake.Rejected[0].Name)
	require.NotNil(t, intake.Session.Notice)

	require.Eventually(t, func() bool {
		r := ts.do(t, http.MethodGet, base, nil)
		return decode[signup.Snapshot](t, r).CanSubmit
	}, 2*time.Second, 5*time.Millisecond)

	resp = ts.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

	select {
	case sub := <-ts.subs:
		assert.Equal(t, "Acme Corp", sub.Record.CompanyName)
		assert.Len(t, sub.Files, 1)
	case <-time.After(time.Second):
		t.Fatal("submitter was not called")
	}

	require.Eventually(t, func() bool {
		r := ts.do(t, http.MethodGet, base, nil)
		snap := decode[signup.Snapshot](t, r)
		return snap.Submission == signup.SubmissionSucceeded && snap.ApplicationID == "app-42"
	}, time.Second, 5*time.Millisecond)

	resp = ts.do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "already_submitted", decode[errorEnvelope](t, resp).Error.Code)
}

func TestSignupSubmitValidationCodes(t *testing.T) {
	ts := newTestServer(t)
	created := decode[signup.Snapshot](t, ts.do(t, http.MethodPost, "/api/v1/signup/sessions", nil))
	base := "/api/v1/signup/sessions/" + created.SessionID

	resp := ts.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	env := decode[errorEnvelope](t, resp)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Contains(t, env.Error.Details["fields"], "companyName")

	rec := fullRecord()
	rec["confirmPassword"] = "other"
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPatch, base+"/fields", rec).Code)
	resp = ts.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "password_mismatch", decode[errorEnvelope](t, resp).Error.Code)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPatch, base+"/fields", map[string]string{"confirmPassword": "s3cret-pass"}).Code)
	resp = ts.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "no_documents", decode[errorEnvelope](t, resp).Error.Code)
}

func TestSignupRemoveFile(t *testing.T) {
	ts := newTestServer(t)
	created := decode[signup.Snapshot](t, ts.do(t, http.MethodPost, "/api/v1/signup/sessions", nil))
	base := "/api/v1/signup/sessions/" + created.SessionID

	resp := ts.upload(t, created.SessionID, upload{name: "a.docx", contentType: "application/octet-stream", data: []byte("PK")})
	require.Equal(t, http.StatusOK, resp.Code)
	intake := decode[struct {
		Accepted []signup.UploadedFile `json:"accepted"`
	}](t, resp)
	require.Len(t, intake.Accepted, 1)

	resp = ts.do(t, http.MethodDelete, base+"/files/"+intake.Accepted[0].ID, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[signup.Snapshot](t, resp).Files)

	resp = ts.do(t, http.MethodDelete, base+"/files/"+intake.Accepted[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "file_not_found", decode[errorEnvelope](t, resp).Error.Code)
}

func TestSignupUnknownAndClosedSession(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/v1/signup/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	created := decode[signup.Snapshot](t, ts.do(t, http.MethodPost, "/api/v1/signup/sessions", nil))
	resp = ts.do(t, http.MethodDelete, "/api/v1/signup/sessions/"+created.SessionID, nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	resp = ts.do(t, http.MethodGet, "/api/v1/signup/sessions/"+created.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSignupUploadRequiresFiles(t *testing.T) {
	ts := newTestServer(t)
	created := decode[signup.Snapshot](t, ts.do(t, http.MethodPost, "/api/v1/signup/sessions", nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/signup/sessions/"+created.SessionID+"/files", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
