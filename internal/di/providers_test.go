package di

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/product-catalog-api/internal/config"
	"github.com/sandeepkv93/product-catalog-api/internal/domain"
	"github.com/sandeepkv93/product-catalog-api/internal/http/handler"
	"github.com/sandeepkv93/product-catalog-api/internal/http/router"
	"github.com/sandeepkv93/product-catalog-api/internal/repository"
	"github.com/sandeepkv93/product-catalog-api/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DBDriver:              config.DBDriverSQLite,
		DatabaseURL:           "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared",
		DBMaxOpenConns:        1,
		DBAutoMigrate:         true,
		CORSAllowedOrigins:    []string{"*"},
		HTTPBodyLimitBytes:    1 << 20,
		DocsEnabled:           true,
		IdempotencyEnabled:    true,
		IdempotencyTTL:        time.Hour,
		IdempotencyPendingTTL: time.Minute,
		ReadinessProbeTimeout: time.Second,
	}
}

func TestProvideHTTPServer(t *testing.T) {
	cfg := &config.Config{HTTPPort: "7099"}
	srv := provideHTTPServer(cfg, nil)
	if srv.Addr != ":7099" {
		t.Fatalf("unexpected addr: %s", srv.Addr)
	}
	if srv.ReadTimeout != 10*time.Second || srv.ReadHeaderTimeout != 5*time.Second || srv.IdleTimeout != 60*time.Second {
		t.Fatalf("unexpected timeouts: %+v", srv)
	}
}

func TestProvideRouterDependencies(t *testing.T) {
	cfg := &config.Config{
		CORSAllowedOrigins: []string{"*"},
		HTTPBodyLimitBytes: 2048,
		DocsEnabled:        true,
		OTELTracingEnabled: true,
	}
	dep := provideRouterDependencies(nil, nil, nil, cfg)
	if !dep.EnableOTelHTTP || !dep.DocsEnabled || dep.BodyLimitBytes != 2048 {
		t.Fatalf("unexpected dependencies: %+v", dep)
	}
	if len(dep.CORSOrigins) != 1 || dep.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins: %+v", dep.CORSOrigins)
	}
	_ = router.Dependencies(dep)
}

func TestProvideIdempotencyStoreSelection(t *testing.T) {
	if store := provideIdempotencyStore(&config.Config{IdempotencyEnabled: false}, nil); store != nil {
		t.Fatalf("expected no store when disabled, got %T", store)
	}
	if provideIdempotencyMiddleware(&config.Config{}, nil) != nil {
		t.Fatal("expected nil middleware factory without a store")
	}

	store := provideIdempotencyStore(&config.Config{IdempotencyEnabled: true}, nil)
	if _, ok := store.(*service.InMemoryIdempotencyStore); !ok {
		t.Fatalf("expected in-memory store, got %T", store)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	store = provideIdempotencyStore(&config.Config{IdempotencyEnabled: true, IdempotencyRedisEnabled: true, IdempotencyRedisPrefix: "p"}, client)
	if _, ok := store.(*service.RedisIdempotencyStore); !ok {
		t.Fatalf("expected redis store, got %T", store)
	}
	if provideIdempotencyMiddleware(&config.Config{IdempotencyTTL: time.Minute}, store) == nil {
		t.Fatal("expected middleware factory for configured store")
	}
}

func TestProvideRedisClientOnlyWhenEnabled(t *testing.T) {
	if c := provideRedisClient(&config.Config{IdempotencyEnabled: true}, discardLogger()); c != nil {
		t.Fatal("expected nil redis client when redis store is disabled")
	}

	mr := miniredis.RunT(t)
	c := provideRedisClient(&config.Config{IdempotencyEnabled: true, IdempotencyRedisEnabled: true, RedisAddr: mr.Addr()}, discardLogger())
	if c == nil {
		t.Fatal("expected redis client")
	}
	defer func() { _ = c.Close() }()
	if err := c.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestProvideRuntimeDBAutoMigrates(t *testing.T) {
	cfg := sqliteConfig(t)
	db, err := provideRuntimeDB(cfg, discardLogger())
	if err != nil {
		t.Fatalf("runtime db: %v", err)
	}
	sqlDB, _ := db.DB()
	defer func() { _ = sqlDB.Close() }()
	if !db.Migrator().HasTable(&domain.Product{}) {
		t.Fatal("expected products table after auto-migrate")
	}

	runner := provideReadinessProbeRunner(cfg, db, nil)
	ready, results := runner.Ready(context.Background())
	if !ready || len(results) != 1 || results[0].Name != "db" {
		t.Fatalf("expected db-only readiness, got ready=%v results=%+v", ready, results)
	}
}

func TestMigrationRunner(t *testing.T) {
	db, err := provideOpenDB(sqliteConfig(t))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	runner := NewMigrationRunner(db)
	defer func() { _ = runner.Close() }()

	ctx := context.Background()
	plans, err := runner.Plan(ctx)
	if err != nil || len(plans) != 1 || plans[0].Exists {
		t.Fatalf("unexpected plan before run: %+v err=%v", plans, err)
	}
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !runner.DB().Migrator().HasTable(&domain.Product{}) {
		t.Fatal("expected products table after run")
	}
}

func TestProvidedGraphServesProducts(t *testing.T) {
	cfg := sqliteConfig(t)
	db, err := provideRuntimeDB(cfg, discardLogger())
	if err != nil {
		t.Fatalf("runtime db: %v", err)
	}
	sqlDB, _ := db.DB()
	defer func() { _ = sqlDB.Close() }()

	svc := service.NewProductService(repository.NewProductRepository(db))
	store := provideIdempotencyStore(cfg, nil)
	dep := provideRouterDependencies(
		handler.NewProductHandler(svc),
		provideIdempotencyMiddleware(cfg, store),
		provideReadinessProbeRunner(cfg, db, nil),
		cfg,
	)
	srv := provideHTTPServer(cfg, router.NewRouter(dep))

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"total":0`) {
		t.Fatalf("unexpected list response: %d %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d %s", rr.Code, rr.Body.String())
	}
}
