package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/upb/freelance-marketplace/backend/auth"
	"github.com/upb/freelance-marketplace/backend/config"
	"github.com/upb/freelance-marketplace/backend/middleware"
	"github.com/upb/freelance-marketplace/backend/repositories"
	"github.com/upb/freelance-marketplace/backend/repositories/cache"
	"github.com/upb/freelance-marketplace/backend/repositories/mongodb"
	"github.com/upb/freelance-marketplace/backend/repositories/postgres"
	"github.com/upb/freelance-marketplace/backend/services/notify"
	"github.com/upb/freelance-marketplace/backend/services/ratelimit"
	"github.com/upb/freelance-marketplace/backend/services/remarks"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	Redis  *redis.Client

	// Exactly one store is set, depending on REMARKS_STORE
	RepoFactory *postgres.RepositoryFactory
	DB          *postgres.DB
	Mongo       *mongodb.Store

	// Repositories
	Remarks   repositories.DeletionRemarkRepository
	TxManager repositories.TransactionManager

	// Services
	Notifier      *notify.Service
	RateLimiter   *ratelimit.RateLimitService
	RemarkService *remarks.Service

	// Middleware
	AuthMiddleware      *middleware.AuthMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware
}

// NewDependencies creates and wires up all application dependencies.
// Anything opened before a failure is closed again.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStore(ctx, cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := deps.initRedis(ctx, cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	deps.initRepositories(cfg)

	if err := deps.initServices(cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("store", cfg.Store.Backend),
		zap.Bool("redis", deps.Redis != nil))
	return deps, nil
}

// initStore opens the configured remark store and prepares its schema
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Store.Backend {
	case config.StoreMongo:
		store, err := mongodb.Connect(ctx, cfg.Store.Mongo, d.Logger)
		if err != nil {
			return err
		}
		d.Mongo = store
		return store.InitSchema(ctx)

	case config.StorePostgres, "":
		factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		d.RepoFactory = factory
		d.DB = factory.GetDB()

		// Test the connection
		if err := d.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		if err := factory.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}

		d.Logger.Info("database connection established",
			zap.String("connection", cfg.Database.LogString()))
		return nil

	default:
		return fmt.Errorf("unsupported remarks store %q", cfg.Store.Backend)
	}
}

// initRedis connects to Redis when a URL is configured. Without it the cache,
// the rate limiter and cue publishing are all disabled.
func (d *Dependencies) initRedis(ctx context.Context, cfg *config.Config) error {
	if !cfg.Redis.Enabled() {
		d.Logger.Warn("redis not configured, cache, rate limiting and notifications disabled")
		return nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	d.Redis = client
	d.Logger.Info("redis connection established", zap.String("addr", opts.Addr))
	return nil
}

// initRepositories picks the repository set of the open store and puts the
// read-through cache in front of it when Redis is available
func (d *Dependencies) initRepositories(cfg *config.Config) {
	var repos *repositories.Repositories
	if d.Mongo != nil {
		repos = d.Mongo.NewRepositories()
	} else {
		repos = d.RepoFactory.NewRepositories()
		d.TxManager = d.RepoFactory.GetTransactionManager()
	}

	d.Remarks = repos.DeletionRemarks
	if d.Redis != nil {
		d.Remarks = cache.NewCachedRemarkRepository(d.Remarks, d.Redis, cfg.Redis.CacheTTL, d.Logger)
	}

	d.Logger.Info("repositories initialized", zap.Bool("cached", d.Redis != nil))
}

// initServices builds the notify pool, the rate limiter and the remark service
func (d *Dependencies) initServices(cfg *config.Config) error {
	// Interfaces stay nil rather than holding a typed nil pointer
	var publisher notify.Publisher
	var limiterClient redis.Cmdable
	if d.Redis != nil {
		publisher = notify.NewRedisPublisher(d.Redis, notify.DefaultChannel)
		limiterClient = d.Redis
	}

	d.Notifier = notify.NewService(publisher, d.Logger, notify.Config{
		BufferSize:  cfg.Notify.BufferSize,
		WorkerCount: cfg.Notify.Workers,
	})
	if err := d.Notifier.Start(); err != nil {
		return fmt.Errorf("failed to start notify service: %w", err)
	}

	d.RateLimiter = ratelimit.NewRateLimitService(limiterClient, cfg.RateLimit.RemarksCreatePerMinute, time.Minute, d.Logger)
	d.RateLimitMiddleware = middleware.NewRateLimitMiddleware(d.RateLimiter, d.Logger)

	d.RemarkService = remarks.NewService(d.Remarks, d.Notifier, d.Logger)
	if d.TxManager != nil {
		d.RemarkService.WithTransactions(d.TxManager)
	}

	d.Logger.Info("services initialized",
		zap.Bool("rate_limit_enabled", d.RateLimiter.Enabled()),
		zap.Bool("atomic_batches", d.TxManager != nil))
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("AUTH_JWT_SECRET not set, protected routes will reject every request")
		// Use reject-all validator so protected routes return 401
		d.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, d.Logger)
		return
	}
	validator := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(&jwtTokenValidatorAdapter{validator: validator}, d.Logger)
	d.Logger.Info("jwt auth initialized", zap.String("issuer", cfg.Auth.Issuer))
}

// jwtTokenValidatorAdapter adapts auth.JWTValidator to middleware.TokenValidator
type jwtTokenValidatorAdapter struct {
	validator *auth.JWTValidator
}

func (a *jwtTokenValidatorAdapter) ValidateToken(ctx context.Context, token string) (*middleware.Claims, error) {
	parsed, err := a.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	groups := []string{}
	if parsed.Role != "" {
		groups = append(groups, parsed.Role)
	}
	return &middleware.Claims{
		Sub:    parsed.Sub,
		Email:  parsed.Email,
		Role:   parsed.Role,
		Groups: groups,
		Iss:    parsed.Issuer,
		Exp:    parsed.ExpiresAt.Unix(),
		Iat:    parsed.IssuedAt.Unix(),
	}, nil
}

// rejectAllValidator rejects all tokens (used when no secret is configured)
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, fmt.Errorf("authentication not configured")
}

// Close gracefully shuts down all dependencies. Queued cues are drained
// before the stores go away.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Notifier != nil {
		if err := d.Notifier.Stop(d.Config.Notify.ShutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop notify service: %w", err))
		}
		d.Notifier = nil
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		} else {
			d.Logger.Info("redis connection closed")
		}
		d.Redis = nil
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
		d.DB = nil
	}

	if d.Mongo != nil {
		if err := d.Mongo.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close mongo: %w", err))
		}
		d.Mongo = nil
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

func (d *Dependencies) closeQuietly(ctx context.Context) {
	if err := d.Close(ctx); err != nil {
		d.Logger.Warn("cleanup after failed initialization", zap.Error(err))
	}
}
