package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"finreport-backend/internal/account"
	"finreport-backend/internal/analysis"
	"finreport-backend/internal/profile"
	"finreport-backend/internal/reports"
	"finreport-backend/internal/services/health"
	"finreport-backend/internal/shared/auth"
	"finreport-backend/internal/shared/config"
	"finreport-backend/internal/shared/lock"
	"finreport-backend/internal/shared/server"
	"finreport-backend/internal/shared/storage/db"
	"finreport-backend/internal/shared/storage/object"
	gcsstore "finreport-backend/internal/shared/storage/object/gcs"
	localstore "finreport-backend/internal/shared/storage/object/local"
	s3store "finreport-backend/internal/shared/storage/object/s3"
	"finreport-backend/internal/shared/telemetry"
	"finreport-backend/internal/usage"
)

const redisKeyPrefix = "finreport:"

// App holds the wired dependencies.
type App struct {
	Config   config.Config
	Router   *gin.Engine
	DB       *sql.DB
	Redis    redis.UniversalClient
	Firebase *firebase.App
	Identity auth.Provider
	Objects  object.Store
	Analysis *analysis.Client
	Profiles *profile.Service
	Accounts *account.Service
	Usage    *usage.Service
	Reports  *reports.Service
	Health   *health.Service

	closers []func() error
}

// Build connects backing services and wires handlers into the router.
// Dev-like environments fall back to in-memory stores when a backend is
// unavailable; other environments fail.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	app := &App{Config: cfg, Health: health.NewService()}

	steps := []func(context.Context) error{
		app.buildDB,
		app.buildRedis,
		app.buildFirebase,
		app.buildIdentity,
		app.buildObjects,
		app.buildServices,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:   cfg,
		Verifier: app.Identity,
		Health:   app.Health,
		Account:  account.NewHandler(app.Accounts),
		Profile:  profile.NewHandler(app.Profiles, cfg.MaxUploadBytes),
		Reports:  reports.NewHandler(app.Reports, cfg.MaxUploadBytes),
		Usage:    usage.NewHandler(app.Usage),
		Profiles: app.Profiles,
	})
	return app, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// fallback logs and swallows err in dev-like environments.
func (a *App) fallback(component string, err error) error {
	if !a.Config.IsDevLike() {
		return fmt.Errorf("%s: %w", component, err)
	}
	telemetry.Warn("bootstrap.fallback", map[string]any{
		"component": component,
		"error":     err.Error(),
	})
	return nil
}

func (a *App) buildDB(ctx context.Context) error {
	if strings.TrimSpace(a.Config.DatabaseURL) == "" {
		if a.Config.IsDevLike() {
			telemetry.Info("bootstrap.memory_stores", map[string]any{"reason": "DATABASE_URL empty"})
			return nil
		}
		return errors.New("DATABASE_URL is required")
	}
	sqlDB, err := db.Connect(ctx, a.Config.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		return a.fallback("database", err)
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return a.fallback("migrations", err)
	}
	a.DB = sqlDB
	a.closers = append(a.closers, sqlDB.Close)
	a.Health.Register("database", sqlDB.PingContext)
	return nil
}

func (a *App) buildRedis(ctx context.Context) error {
	if strings.TrimSpace(a.Config.RedisURL) == "" {
		return nil
	}
	opts, err := redis.ParseURL(a.Config.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return a.fallback("redis", err)
	}
	a.Redis = client
	a.closers = append(a.closers, client.Close)
	a.Health.Register("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	return nil
}

func (a *App) needsFirebase() bool {
	return a.Config.IdentityProvider == "firebase" ||
		a.Config.ProfileStore == "firestore" ||
		a.Config.ObjectStoreType == "gcs"
}

func (a *App) buildFirebase(ctx context.Context) error {
	if !a.needsFirebase() {
		return nil
	}
	fbApp, err := auth.NewFirebaseApp(ctx, auth.FirebaseOptions{
		CredentialsFile: a.Config.FirebaseCredentialsFile,
		ProjectID:       a.Config.FirebaseProjectID,
		StorageBucket:   a.Config.GCSBucket,
	})
	if err != nil {
		return err
	}
	a.Firebase = fbApp
	return nil
}

func (a *App) buildIdentity(ctx context.Context) error {
	if a.Config.IdentityProvider != "firebase" {
		if !a.Config.IsDevLike() {
			return errors.New("IDENTITY_PROVIDER=memory is only allowed in dev")
		}
		a.Identity = auth.NewMemory()
		return nil
	}
	var toolkit *auth.Toolkit
	if strings.TrimSpace(a.Config.FirebaseWebAPIKey) != "" {
		toolkit = auth.NewToolkit(a.Config.FirebaseWebAPIKey, "")
	}
	provider, err := auth.NewFirebase(ctx, a.Firebase, toolkit)
	if err != nil {
		return err
	}
	provider.LogActionLinks(a.Config.IsDevLike())
	a.Identity = provider
	return nil
}

func (a *App) buildObjects(ctx context.Context) error {
	switch a.Config.ObjectStoreType {
	case "s3":
		store, err := s3store.New(ctx, a.Config.AWSRegion, a.Config.S3Bucket, a.Config.S3Prefix, a.Config.SSEKMSKeyID)
		if err != nil {
			return fmt.Errorf("s3 object store: %w", err)
		}
		a.Objects = store
	case "gcs":
		store, err := gcsstore.NewFromFirebase(ctx, a.Firebase, a.Config.GCSBucket)
		if err != nil {
			return fmt.Errorf("gcs object store: %w", err)
		}
		a.Objects = store
	default:
		a.Objects = localstore.New(a.Config.LocalStoreDir, a.Config.PublicBaseURL)
	}
	return nil
}

func (a *App) buildProfileStore(ctx context.Context) (profile.Store, error) {
	switch a.Config.ProfileStore {
	case "firestore":
		store, err := profile.NewFirestoreStore(ctx, a.Firebase)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "postgres":
		if a.DB != nil {
			return &profile.PGStore{DB: a.DB}, nil
		}
		if err := a.fallback("profile store", errors.New("PROFILE_STORE=postgres without a database")); err != nil {
			return nil, err
		}
	}
	return profile.NewMemoryStore(), nil
}

func (a *App) buildServices(ctx context.Context) error {
	profileStore, err := a.buildProfileStore(ctx)
	if err != nil {
		return err
	}
	var (
		locks    lock.Locker
		sessions reports.SessionStore
	)
	if a.Redis != nil {
		locks = lock.NewRedis(a.Redis, redisKeyPrefix)
		sessions = reports.NewRedisSessions(a.Redis, redisKeyPrefix)
	} else {
		locks = lock.NewMemory()
		sessions = reports.NewMemorySessions()
	}

	a.Profiles = profile.NewService(profileStore, a.Identity, a.Objects, locks)
	a.Accounts = account.NewService(a.Identity, a.Profiles)

	if a.DB != nil {
		a.Usage = usage.NewServiceWithStore(usage.NewPGStore(a.DB))
	} else {
		a.Usage = usage.NewService()
	}

	a.Analysis = analysis.New(analysis.Options{
		BaseURL:      a.Config.APIBaseURL,
		Timeout:      a.Config.AnalysisTimeout,
		ClientID:     a.Config.AnalysisClientID,
		ClientSecret: a.Config.AnalysisClientSecret,
		TokenURL:     a.Config.AnalysisTokenURL,
	})
	a.Health.Register("analysis", a.Analysis.Health)

	a.Reports = reports.NewService(a.Analysis, a.Usage, sessions, locks, reports.Options{
		SessionTTL: a.Config.ReportSessionTTL,
		LockTTL:    a.Config.EffectiveBusyLockTTL(),
	})
	return nil
}
