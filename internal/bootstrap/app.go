package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"signup-backend/internal/applications"
	"signup-backend/internal/licenses"
	"signup-backend/internal/queue"
	"signup-backend/internal/shared/config"
	"signup-backend/internal/shared/server"
	"signup-backend/internal/shared/storage/db"
	"signup-backend/internal/shared/storage/object"
	localstore "signup-backend/internal/shared/storage/object/local"
	s3store "signup-backend/internal/shared/storage/object/s3"
	"signup-backend/internal/shared/telemetry"
	"signup-backend/internal/signup"
)

// Mode selects which process the dependencies are built for.
type Mode int

const (
	// ModeAPI builds the HTTP server with signup sessions and the router.
	ModeAPI Mode = iota
	// ModeWorker builds only what the review consumer needs.
	ModeWorker
)

// App holds shared dependencies.
type App struct {
	Config              config.Config
	Router              *gin.Engine
	DB                  *sql.DB
	Store               object.ObjectStore
	Queue               queue.Client
	ApplicationsRepo    applications.Repo
	ApplicationsService *applications.Service
	LicensesService     *licenses.Service
	Registry            *signup.Registry
}

// Build prepares dependencies for the given mode.
func Build(ctx context.Context, cfg config.Config, mode Mode) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	dbOpts := db.DefaultServerOptions()
	if mode == ModeWorker {
		dbOpts = db.DefaultWorkerOptions()
	}
	sqlDB, err := buildDB(ctx, cfg, db.OptionsFromEnv(dbOpts))
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
	}
	if err := buildServices(ctx, app); err != nil {
		return nil, err
	}
	if mode == ModeWorker {
		return app, nil
	}

	app.Registry = buildRegistry(cfg.Signup, store, app.ApplicationsService)
	app.Router = server.NewRouter(server.RouterDeps{
		Config:              cfg,
		DB:                  sqlDB,
		SignupHandler:       signup.NewHandler(app.Registry, signup.Policy{MaxBytes: cfg.Signup.MaxFileBytes}),
		ApplicationsHandler: applications.NewHandler(app.ApplicationsService),
		LicensesHandler:     licenses.NewHandler(app.LicensesService),
	})
	return app, nil
}

// Close stops signup sessions and releases the database pool.
func (a *App) Close() error {
	if a.Registry != nil {
		a.Registry.Stop()
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

func buildDB(ctx context.Context, cfg config.Config, opts db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database.memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database.memory", map[string]any{"reason": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, errors.New("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildServices(ctx context.Context, app *App) error {
	var appRepo applications.Repo
	var licSvc *licenses.Service
	if app.DB != nil {
		appRepo = applications.NewPGRepo(app.DB)
		licSvc = licenses.NewServiceWithStore(licenses.NewPGStore(app.DB))
	} else {
		appRepo = applications.NewMemoryRepo()
		licSvc = licenses.NewService()
	}

	appSvc := applications.NewService(appRepo, nil, app.Store, licSvc, app.Config.Signup.DefaultSeats)

	q, err := buildQueue(ctx, app.Config, appSvc)
	if err != nil {
		return err
	}
	appSvc.Queue = q

	app.Queue = q
	app.ApplicationsRepo = appRepo
	app.ApplicationsService = appSvc
	app.LicensesService = licSvc
	return nil
}

// buildQueue uses SQS when a queue URL is configured. Otherwise reviews run
// in-process.
func buildQueue(ctx context.Context, cfg config.Config, svc *applications.Service) (queue.Client, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) != "" {
		return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
	}
	return &queue.InlineClient{
		Handle: func(ctx context.Context, msg queue.Message) error {
			return svc.ProcessReview(ctx, msg.ApplicationID)
		},
	}, nil
}

func buildRegistry(cfg config.SignupConfig, store object.ObjectStore, submitter signup.Submitter) *signup.Registry {
	var transport signup.Transport
	switch cfg.UploadTransport {
	case "store":
		transport = signup.StoreTransport{Store: store}
	default:
		transport = signup.SimulatedTransport{Interval: cfg.TickInterval, Increment: cfg.TickIncrement}
	}

	reg := signup.NewRegistry(signup.Options{
		Transport: transport,
		Submitter: submitter,
		Policy:    signup.Policy{MaxBytes: cfg.MaxFileBytes},
		NoticeTTL: cfg.NoticeTTL,
		Observer:  signup.RecordChange,
	}, cfg.SessionTTL)
	reg.Start(cfg.SweepInterval)
	return reg
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
