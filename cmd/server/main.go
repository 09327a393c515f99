package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimbleforge/forge/internal/cache"
	"github.com/nimbleforge/forge/internal/database/migrations"
	"github.com/nimbleforge/forge/internal/database/postgres"
	"github.com/nimbleforge/forge/internal/middleware/authjwt"
	"github.com/nimbleforge/forge/internal/pkg/log"
	platformconfig "github.com/nimbleforge/forge/internal/platform/config"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/internal/server"
	"github.com/nimbleforge/forge/lowcode"
	"github.com/nimbleforge/forge/lowcode/ddl"
	lchandlers "github.com/nimbleforge/forge/lowcode/handlers"
	"github.com/nimbleforge/forge/lowcode/registry"
	lcrepository "github.com/nimbleforge/forge/lowcode/repository"
	"github.com/nimbleforge/forge/lowcode/sequence"
	lcservices "github.com/nimbleforge/forge/lowcode/services"
	"github.com/nimbleforge/forge/upms"
	"github.com/nimbleforge/forge/upms/authz"
	upmshandlers "github.com/nimbleforge/forge/upms/handlers"
	upmsrepository "github.com/nimbleforge/forge/upms/repository"
	upmsservices "github.com/nimbleforge/forge/upms/services"
)

func fatal(format string, a ...interface{}) {
	log.Error(format, a...)
	os.Exit(1)
}

func main() {
	cfg, err := platformconfig.LoadFromEnv()
	if err != nil {
		fatal("Failed to load platform config: %v", err)
	}
	log.SetDebug(cfg.Server.Debug)
	if cfg.Server.Debug {
		log.InfoStruct(cfg.Server, cfg.Query, cfg.Security)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.RunMigrations {
		if err := migrations.Up(postgres.URL(&cfg.Database.Postgres)); err != nil {
			fatal("Failed to run migrations: %v", err)
		}
	}

	pgClient, err := postgres.NewClient(ctx, &cfg.Database.Postgres)
	if err != nil {
		fatal("Failed to create postgres client: %v", err)
	}
	defer pgClient.Close()

	backend, err := cache.New(&cfg.Cache)
	if err != nil {
		fatal("Failed to create cache: %v", err)
	}
	cacheService := cache.NewService(backend, cfg.Cache.Prefix, cfg.Cache.TTL)
	defer cacheService.Close()

	// Sequence counters need a backend even when caching is off.
	counters := cacheService
	if !cacheService.Enabled() {
		counters = cache.NewService(cache.NewMemoryCache(0, cfg.Cache.CleanupInterval), cfg.Cache.Prefix, 0)
		defer counters.Close()
	}
	if _, shared := backend.(*cache.RedisCache); !shared {
		log.Warn("sequence counters are kept in process memory: they restart at 1 after a restart and are not shared between instances; use CACHE_BACKEND=redis for durable serial numbers")
	}

	compiler := query.NewCompiler(query.Options{
		DefaultPageSize: cfg.Query.DefaultPageSize,
		MaxPageSize:     cfg.Query.MaxPageSize,
	})

	// UPMS
	upmsRepo := upmsrepository.NewPostgresRepository(pgClient)
	authorizer, err := authz.NewAuthorizer(ctx, upmsRepo, cfg.Security.SuperRole)
	if err != nil {
		fatal("Failed to load authorization policy: %v", err)
	}
	issuer, err := authjwt.NewIssuer(cfg.JWT.PrivateKey, cfg.JWT.Issuer, cfg.JWT.TokenTTL)
	if err != nil {
		fatal("Failed to create token issuer: %v", err)
	}
	passwordPolicy := upmsservices.NewPasswordPolicy(cfg.Security)

	upmsHandlers := &upms.Handlers{
		UserHandler: upmshandlers.NewUserHandler(upmsservices.NewUserService(upmsRepo, passwordPolicy, authorizer, cacheService, compiler)),
		RoleHandler: upmshandlers.NewRoleHandler(upmsservices.NewRoleService(upmsRepo, authorizer, compiler)),
		AuthHandler: upmshandlers.NewAuthHandler(upmsservices.NewAuthService(upmsRepo, passwordPolicy, issuer), authorizer),
	}
	if backend != nil {
		upmsHandlers.RateLimitStorage = cache.NewFiberStorage(backend, cfg.Cache.Prefix+":limiter:")
	}

	// Low-code
	lcRepo := lcrepository.NewPostgresRepository(pgClient)
	schemaRegistry := registry.New(lcRepo, compiler)
	generator := sequence.NewGenerator(counters)
	schemaService := lcservices.NewSchemaService(lcRepo, schemaRegistry, ddl.NewBuilder(pgClient.Schema()), generator, compiler)
	if err := schemaService.Warm(ctx); err != nil {
		fatal("Failed to warm schema registry: %v", err)
	}

	lowcodeHandlers := &lowcode.Handlers{
		SchemaHandler:   lchandlers.NewSchemaHandler(schemaService),
		RecordHandler:   lchandlers.NewRecordHandler(lcservices.NewRecordService(lcRepo, schemaRegistry, generator)),
		PageHandler:     lchandlers.NewPageHandler(lcservices.NewPageService(lcRepo, cacheService, compiler)),
		SequenceHandler: lchandlers.NewSequenceHandler(generator),
	}

	srv := server.New(cfg)
	srv.AddHealthCheck("postgres", pgClient.HealthCheck)
	if backend != nil {
		srv.AddHealthCheck("cache", func(ctx context.Context) error {
			_, err := backend.Exists(ctx, cfg.Cache.Prefix+":health")
			return err
		})
	}

	router := srv.Router()
	upms.RegisterRoutes(router, upmsHandlers, cfg, authorizer.RequirePermission)
	lowcode.RegisterRoutes(router, lowcodeHandlers, cfg, authorizer.RequirePermission)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen() }()

	select {
	case err := <-errCh:
		if err != nil {
			fatal("Server stopped: %v", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Shutdown failed: %v", err)
		}
	}
}
