package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"signup-backend/internal/applications"
	"signup-backend/internal/queue"
	"signup-backend/internal/shared/config"
	"signup-backend/internal/signup"
)

func devConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Env:           "dev",
		LocalStoreDir: t.TempDir(),
		Signup: config.SignupConfig{
			UploadTransport: "simulated",
			TickInterval:    time.Millisecond,
			TickIncrement:   50,
			SessionTTL:      time.Hour,
			SweepInterval:   time.Minute,
			MaxFileBytes:    signup.MaxFileBytes,
			DefaultSeats:    5,
		},
	}
}

func TestBuildAPIUsesMemoryWithoutDatabase(t *testing.T) {
	app, err := Build(context.Background(), devConfig(t), ModeAPI)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	if app.DB != nil {
		t.Fatal("expected no database")
	}
	if _, ok := app.ApplicationsRepo.(*applications.MemoryRepo); !ok {
		t.Fatalf("expected memory repo, got %T", app.ApplicationsRepo)
	}
	if _, ok := app.Queue.(*queue.InlineClient); !ok {
		t.Fatalf("expected inline queue, got %T", app.Queue)
	}
	if app.Router == nil || app.Registry == nil {
		t.Fatal("expected router and registry")
	}

	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestBuildWorkerSkipsRouter(t *testing.T) {
	app, err := Build(context.Background(), devConfig(t), ModeWorker)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	if app.Router != nil || app.Registry != nil {
		t.Fatal("worker should not build the router or registry")
	}
	if app.ApplicationsService == nil {
		t.Fatal("expected applications service")
	}
}

func TestBuildRequiresDatabaseOutsideDev(t *testing.T) {
	cfg := devConfig(t)
	cfg.Env = "production"
	if _, err := Build(context.Background(), cfg, ModeAPI); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestBuildS3RequiresBucket(t *testing.T) {
	cfg := devConfig(t)
	cfg.ObjectStoreType = "s3"
	if _, err := Build(context.Background(), cfg, ModeAPI); err == nil {
		t.Fatal("expected error without S3_BUCKET")
	}
}
