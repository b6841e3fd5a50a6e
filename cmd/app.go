package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/amirphl/magpie/app/handlers"
	"github.com/amirphl/magpie/app/middleware"
	"github.com/amirphl/magpie/app/router"
	"github.com/amirphl/magpie/app/services"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/amirphl/magpie/config"
	"github.com/amirphl/magpie/logging"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Application holds every wired component. CLI commands build only what they need from it.
type Application struct {
	cfg   *config.ProductionConfig
	log   *logrus.Logger
	db    *gorm.DB
	redis *redis.Client

	store    services.ArtifactStore
	notifier *services.AsyncNotifier
	analyzer services.AnalyzerService

	tokenService services.TokenService

	linkRepo     repository.LinkRepository
	tokenRepo    repository.APITokenRepository
	adminRepo    repository.AdminRepository
	opLogRepo    repository.OperationLogRepository
	categoryRepo repository.CategoryRepository
	settingRepo  repository.SettingRepository

	opLogFlow    businessflow.OperationLogFlow
	authFlow     businessflow.AuthFlow
	adminFlow    businessflow.AdminAuthFlow
	tokenFlow    businessflow.APITokenFlow
	categoryFlow businessflow.CategoryFlow
	settingsFlow businessflow.SettingsFlow
	ingestFlow   businessflow.LinkIngestFlow
	reviewFlow   businessflow.LinkReviewFlow
	exportFlow   businessflow.LinkExportFlow
	publicFlow   businessflow.PublicLinkFlow
	artifactFlow businessflow.ArtifactFlow

	closers []io.Closer
}

// newApplication loads configuration and wires storage, services and flows
func newApplication(configPath string) (*Application, error) {
	cfg, err := config.LoadProductionConfig(configPath)
	if err != nil {
		return nil, err
	}

	log, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := &Application{cfg: cfg, log: log, closers: []io.Closer{logCloser}}

	if err := a.initialize(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) initialize() error {
	cfg := a.cfg

	db, err := initializeDatabase(cfg.Database, a.log)
	if err != nil {
		return err
	}
	a.db = db

	rc, err := initializeCache(cfg.Cache, a.log)
	if err != nil {
		return err
	}
	a.redis = rc

	a.store, err = initializeArtifactStore(cfg, rc, a.log)
	if err != nil {
		return err
	}

	a.linkRepo = repository.NewLinkRepository(db)
	a.tokenRepo = repository.NewAPITokenRepository(db)
	a.adminRepo = repository.NewAdminRepository(db)
	a.opLogRepo = repository.NewOperationLogRepository(db)
	a.categoryRepo = repository.NewCategoryRepository(db)
	a.settingRepo = repository.NewSettingRepository(db)

	a.tokenService, err = services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	var captchaSvc services.CaptchaService
	if cfg.Captcha.Enabled {
		var challenges services.ChallengeStore = services.NewMemoryChallengeStore()
		if cfg.Captcha.Store == "redis" {
			challenges = services.NewRedisChallengeStore(rc, cfg.Cache.RedisPrefix+"captcha:")
		}
		captchaSvc, err = services.NewCaptchaServiceRotate(challenges, cfg.Captcha.TTL, cfg.Captcha.Padding, cfg.Captcha.ImageSize)
		if err != nil {
			return fmt.Errorf("failed to initialize captcha: %w", err)
		}
	}

	var fetcher services.Fetcher = services.NewHTTPFetcher(cfg.Extractor.Timeout)
	if cfg.Extractor.UseBrowser {
		fetcher = services.NewBrowserFetcher(a.log, fetcher, cfg.Extractor.Timeout, cfg.Extractor.BrowserBin)
	}
	extractor := services.NewExtractorService(fetcher, cfg.Extractor.MaxContentLength, a.log)

	baseAI := baseAIConfig(cfg)
	a.analyzer = services.NewAnalyzerService(baseAI, nil, nil, a.log)

	site := services.SiteInfo{URL: cfg.Site.URL, Title: cfg.Site.Title, Description: cfg.Site.Description}
	regenerator := services.NewRegeneratorService(a.linkRepo, a.store, site, a.log)
	a.notifier = services.NewAsyncNotifier(regenerator, a.log)

	a.opLogFlow = businessflow.NewOperationLogFlow(a.opLogRepo, a.log)
	a.authFlow = businessflow.NewAuthFlow(a.tokenRepo, a.adminRepo, a.tokenService, a.log)
	a.adminFlow = businessflow.NewAdminAuthFlow(a.adminRepo, a.tokenService, captchaSvc, a.opLogFlow, cfg.Session.TTL, a.log)
	a.tokenFlow = businessflow.NewAPITokenFlow(a.tokenRepo, a.tokenService, a.opLogFlow, a.log)
	a.categoryFlow = businessflow.NewCategoryFlow(db, a.categoryRepo, a.linkRepo, a.settingRepo, a.analyzer, a.opLogFlow, a.log)
	a.settingsFlow = businessflow.NewSettingsFlow(db, a.settingRepo, a.analyzer, regenerator, baseAI, a.opLogFlow, a.log)
	a.ingestFlow = businessflow.NewLinkIngestFlow(a.linkRepo, a.categoryRepo, extractor, a.analyzer, a.notifier, a.opLogFlow, a.log)
	a.reviewFlow = businessflow.NewLinkReviewFlow(a.linkRepo, a.categoryRepo, extractor, a.analyzer, a.notifier, a.opLogFlow, a.log)
	a.exportFlow = businessflow.NewLinkExportFlow(a.linkRepo, a.opLogFlow, a.log)
	a.publicFlow = businessflow.NewPublicLinkFlow(a.linkRepo, a.log)
	a.artifactFlow = businessflow.NewArtifactFlow(a.store, regenerator, a.opLogFlow, a.log)

	return nil
}

// applyRuntimeState seeds missing settings, then pushes stored settings and active categories into the live services
func (a *Application) applyRuntimeState(ctx context.Context) error {
	if err := a.settingsFlow.SeedDefaults(ctx, defaultSettings(a.cfg)); err != nil {
		return err
	}
	return a.categoryFlow.SyncAnalyzer(ctx)
}

func (a *Application) newRouter() router.Router {
	auth := middleware.NewAuthMiddleware(a.authFlow, a.log)
	return router.NewFiberRouter(a.cfg, router.Handlers{
		Link:     handlers.NewLinkHandler(a.ingestFlow, a.reviewFlow, a.exportFlow, a.log),
		Public:   handlers.NewPublicHandler(a.publicFlow, a.categoryFlow, a.artifactFlow, a.log),
		Auth:     handlers.NewAuthHandler(a.adminFlow, a.log),
		Category: handlers.NewCategoryHandler(a.categoryFlow, a.log),
		Settings: handlers.NewSettingsHandler(a.settingsFlow, a.log),
		Token:    handlers.NewAPITokenHandler(a.tokenFlow, a.log),
		Site:     handlers.NewSiteHandler(a.opLogFlow, a.artifactFlow, a.log),
	}, auth, a.log)
}

// Close waits for background regenerations and releases resources in reverse order
func (a *Application) Close() {
	if a.notifier != nil {
		a.notifier.Wait()
	}
	// the redis store shares the client closed below
	if a.store != nil && a.cfg.Artifacts.Backend != "redis" {
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close artifact store")
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

// initializeDatabase opens postgres or sqlite and configures the pool
func initializeDatabase(cfg config.DatabaseConfig, log logrus.FieldLogger) (*gorm.DB, error) {
	level := gormlogger.Silent
	if cfg.SlowQueryLog {
		level = gormlogger.Warn
	}
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(log.WithField("component", "gorm"), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Dialector{
			DriverName: "sqlite",
			DSN:        cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		}
	default:
		dialector = postgres.New(postgres.Config{
			DriverName: cfg.DriverName,
			DSN:        cfg.DSN(),
		})
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// one writer at a time
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.WithFields(logrus.Fields{
		"driver":         cfg.Driver,
		"max_open_conns": cfg.MaxOpenConns,
	}).Info("Database connection established")
	return db, nil
}

// initializeCache returns nil when the cache is disabled
func initializeCache(cfg config.CacheConfig, log logrus.FieldLogger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.WithField("db", cfg.RedisDB).Info("Redis connection established")
	return rc, nil
}

func initializeArtifactStore(cfg *config.ProductionConfig, rc *redis.Client, log logrus.FieldLogger) (services.ArtifactStore, error) {
	switch cfg.Artifacts.Backend {
	case "redis":
		return services.NewRedisArtifactStore(rc, cfg.Cache.RedisPrefix+"artifact:"), nil
	case "badger":
		store, err := services.NewBadgerArtifactStore(cfg.Artifacts.Dir, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open artifact store: %w", err)
		}
		return store, nil
	default:
		return services.NewMemoryArtifactStore(), nil
	}
}

func baseAIConfig(cfg *config.ProductionConfig) services.AIConfig {
	return services.AIConfig{
		Provider:        cfg.AI.Provider,
		APIKey:          cfg.AI.APIKey,
		BaseURL:         cfg.AI.BaseURL,
		Model:           cfg.AI.Model,
		Temperature:     float32(cfg.AI.Temperature),
		Timeout:         cfg.AI.Timeout,
		DefaultCategory: cfg.Site.DefaultCategory,
		ReadingWPM:      cfg.Site.ReadingWPM,
	}
}

// defaultSettings seeds the settings table from configuration
func defaultSettings(cfg *config.ProductionConfig) map[string]string {
	return map[string]string{
		models.SettingAIProvider:      cfg.AI.Provider,
		models.SettingAIAPIKey:        cfg.AI.APIKey,
		models.SettingAIBaseURL:       cfg.AI.BaseURL,
		models.SettingAIModel:         cfg.AI.Model,
		models.SettingAITemperature:   strconv.FormatFloat(cfg.AI.Temperature, 'f', -1, 64),
		models.SettingDefaultCategory: cfg.Site.DefaultCategory,
		models.SettingReadingSpeedWPM: strconv.Itoa(cfg.Site.ReadingWPM),
		models.SettingSiteURL:         cfg.Site.URL,
		models.SettingSiteTitle:       cfg.Site.Title,
		models.SettingSiteDescription: cfg.Site.Description,
	}
}
