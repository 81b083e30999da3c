package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/technosupport/ts-license/internal/api"
	"github.com/technosupport/ts-license/internal/auth"
	"github.com/technosupport/ts-license/internal/data"
	"github.com/technosupport/ts-license/internal/health"
	"github.com/technosupport/ts-license/internal/license"
	"github.com/technosupport/ts-license/internal/metrics"
	"github.com/technosupport/ts-license/internal/middleware"
	"github.com/technosupport/ts-license/internal/ratelimit"
	"github.com/technosupport/ts-license/internal/seclog"
	"github.com/technosupport/ts-license/internal/session"
	"github.com/technosupport/ts-license/internal/tokens"
)

const serviceName = "TS-License"

type fileConfig struct {
	RateLimit middleware.Config `yaml:"rate_limit"`
	SecLog    struct {
		SpoolDir     string `yaml:"spool_dir"`
		SpoolMaxMB   int64  `yaml:"spool_max_mb"`
		DedupMaxKeys int    `yaml:"dedup_max_keys"`
		DedupTTL     string `yaml:"dedup_ttl"`
		NatsSubject  string `yaml:"nats_subject"`
	} `yaml:"seclog"`
}

func main() {
	// 1. Config
	dbHost := envOr("DB_HOST", "localhost")
	dbUser := envOr("DB_USER", "postgres")
	dbPass := os.Getenv("DB_PASSWORD")
	dbName := envOr("DB_NAME", "ts_license")
	redisAddr := envOr("REDIS_ADDR", "localhost:6379")
	jwtKey := envOr("JWT_SIGNING_KEY", "dev-secret-do-not-use-in-prod")
	adminUser := envOr("ADMIN_USER", "admin")
	adminPassHash := os.Getenv("ADMIN_PASSWORD_HASH")
	ipSalt := envOr("RATELIMIT_IP_SALT", "stable-salt-val")

	if adminPassHash == "" {
		log.Fatal("ADMIN_PASSWORD_HASH is required (use cmd/genpass)")
	}

	var cfg fileConfig
	cfgData, err := os.ReadFile(envOr("CONFIG_PATH", "config/default.yaml"))
	if err != nil {
		log.Printf("Warning: config read failed (%v), using defaults", err)
	} else if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("Config parse error: %v", err)
	}
	applyConfigDefaults(&cfg)

	// 2. DB Init
	connStr := fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable", dbUser, dbPass, dbHost, dbName)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	// Shared Redis Client
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Components
	licRepo := data.LicenseModel{DB: db}
	logRepo := data.SecurityLogModel{DB: db}

	licenseService := license.NewService(licRepo, nil)

	// Violation log: spool failover + optional NATS fan-out
	seclog.ConfigureFailover(cfg.SecLog.SpoolDir, cfg.SecLog.SpoolMaxMB)
	dedupTTL, err := time.ParseDuration(cfg.SecLog.DedupTTL)
	if err != nil {
		log.Fatalf("Config seclog.dedup_ttl: %v", err)
	}
	dedup := seclog.NewDedup(cfg.SecLog.DedupMaxKeys, dedupTTL)

	var publisher seclog.Publisher
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		nc, err := nats.Connect(natsURL, nats.Name(serviceName))
		if err != nil {
			log.Printf("Warning: NATS connect failed: %v. Violation fan-out disabled.", err)
		} else {
			defer nc.Close()
			publisher = seclog.NewNATSPublisher(nc, cfg.SecLog.NatsSubject, 3)
			log.Printf("Connected to NATS, publishing violations on %s", cfg.SecLog.NatsSubject)
		}
	}

	seclogService := seclog.NewService(logRepo, dedup, publisher)
	seclogService.StartReplayer(ctx)

	// Admin auth
	tokenMgr := tokens.NewManager(jwtKey)
	blacklist := auth.NewRedisBlacklist(rdb)
	sessionMgr := session.NewManager(rdb)
	jwtMiddleware := middleware.NewJWTAuth(tokenMgr, blacklist)

	// Rate limiting
	limiter := ratelimit.NewLimiter(rdb, ipSalt)
	rlMiddleware := middleware.NewRateLimitMiddleware(limiter, cfg.RateLimit)

	// Metrics
	collector := metrics.NewCollector(licRepo)
	collector.StartGaugeSync(ctx, time.Minute)

	// Handlers
	authHandler := &api.AuthHandler{
		Tokens:        tokenMgr,
		Session:       sessionMgr,
		Blacklist:     blacklist,
		AdminUser:     adminUser,
		AdminPassHash: adminPassHash,
	}
	licenseHandler := api.NewLicenseHandler(licenseService, collector)
	seclogHandler := api.NewSecLogHandler(seclogService, collector)
	adminHandler := api.NewAdminHandler(licenseService, seclogService, collector)

	// 4. Routes
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)
	r.Use(middleware.RequestLogger)
	r.Use(rlMiddleware.GlobalLimiter)

	// Device API + login (public)
	r.Post("/api/admin/login", authHandler.Login)
	r.Post("/api/activate", licenseHandler.Activate)
	r.Post("/api/validate", licenseHandler.Validate)
	r.Post("/api/security-log", seclogHandler.Report)

	// Admin (token-gated)
	r.Group(func(pr chi.Router) {
		pr.Use(jwtMiddleware.Middleware)
		pr.Get("/api/admin/stats", adminHandler.Stats)
		pr.Post("/api/admin/generate", adminHandler.Generate)
		pr.Post("/api/admin/logout", authHandler.Logout)
	})

	healthSvc := health.NewService(
		health.Check{Name: "postgres", Probe: db.PingContext},
		health.Check{Name: "redis", Probe: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)
	r.Get("/health", healthSvc.Handler)
	r.Handle("/metrics", collector.Handler())

	port := envOr("PORT", "8080")
	server := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Printf("Starting %s on :%s", serviceName, port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown error: %v", err)
	}
	log.Println("Server stopped gracefully")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func applyConfigDefaults(cfg *fileConfig) {
	if cfg.RateLimit.GlobalIP.Rate == 0 {
		cfg.RateLimit.GlobalIP = ratelimit.LimitConfig{Rate: 300, Window: time.Minute}
	}
	if cfg.SecLog.SpoolMaxMB == 0 {
		cfg.SecLog.SpoolMaxMB = 64
	}
	if cfg.SecLog.DedupMaxKeys == 0 {
		cfg.SecLog.DedupMaxKeys = 4096
	}
	if cfg.SecLog.DedupTTL == "" {
		cfg.SecLog.DedupTTL = "30s"
	}
	if cfg.SecLog.NatsSubject == "" {
		cfg.SecLog.NatsSubject = "tslicense.violations"
	}
}
