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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/technosupport/addaxai-connect/internal/api"
	"github.com/technosupport/addaxai-connect/internal/auth"
	"github.com/technosupport/addaxai-connect/internal/authz"
	"github.com/technosupport/addaxai-connect/internal/data"
	"github.com/technosupport/addaxai-connect/internal/middleware"
	"github.com/technosupport/addaxai-connect/internal/ratelimit"
	"github.com/technosupport/addaxai-connect/internal/session"
	"github.com/technosupport/addaxai-connect/internal/tokens"
)

const serviceName = "addaxai-connect-server"

func main() {
	dbHost := os.Getenv("DB_HOST")
	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	redisAddr := os.Getenv("REDIS_ADDR")
	redisPass := os.Getenv("REDIS_PASSWORD")
	jwtKey := os.Getenv("JWT_SIGNING_KEY")
	rateLimitSalt := os.Getenv("RATE_LIMIT_SALT")

	if jwtKey == "" {
		jwtKey = "dev-secret-do-not-use-in-prod"
		log.Println("warning: JWT_SIGNING_KEY not set, using an insecure development default")
	}
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	if rateLimitSalt == "" {
		rateLimitSalt = "dev-rate-limit-salt"
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable", dbUser, dbPass, dbHost, dbName)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, Password: redisPass})

	// Rate limit config is optional; absent config/default.yaml just leaves
	// endpoint-specific overrides empty and falls back to the defaults below.
	var rootCfg struct {
		RateLimit middleware.Config `yaml:"rate_limit"`
	}
	if cfgData, err := os.ReadFile("config/default.yaml"); err == nil {
		if err := yaml.Unmarshal(cfgData, &rootCfg); err != nil {
			log.Printf("warning: could not parse config/default.yaml: %v", err)
		}
	}
	if rootCfg.RateLimit.GlobalIP.Rate == 0 {
		rootCfg.RateLimit.GlobalIP = ratelimit.LimitConfig{Rate: 100, Window: time.Second}
	}
	if rootCfg.RateLimit.User.Rate == 0 {
		rootCfg.RateLimit.User = ratelimit.LimitConfig{Rate: 1000, Window: time.Hour}
	}

	// Data layer
	users := data.UserModel{DB: db}
	invitations := data.InvitationModel{DB: db}
	memberships := data.MembershipModel{DB: db}
	refreshTokens := data.TokenModel{DB: db}

	// AuthZ and auth infra
	blacklist := auth.NewRedisBlacklist(rdb)
	tokenMgr := tokens.NewManager(jwtKey)
	sessionMgr := session.NewManager(redisAddr, redisPass)
	checker := authz.NewChecker(memberships, users)

	jwtAuth := middleware.NewJWTAuth(tokenMgr, blacklist, api.UserLookup{Users: users})
	authzMiddleware := middleware.NewAuthzMiddleware(checker)

	limiter := ratelimit.NewLimiter(rdb, rateLimitSalt)
	rlMiddleware := middleware.NewRateLimitMiddleware(limiter, tokenMgr, rootCfg.RateLimit, rootCfg.RateLimit.Endpoints)

	authHandler := &api.AuthHandler{
		Users:    users,
		Tokens:   refreshTokens,
		Sessions: sessionMgr,
		JWT:      tokenMgr,
	}
	invitationHandler := &api.InvitationHandler{
		Invitations: invitations,
		Memberships: memberships,
		Users:       users,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(middleware.CORS)
	r.Use(rlMiddleware.GlobalLimiter)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Public AuthZ surface: no membership or project is known yet.
	r.Post("/api/v1/auth/login", authHandler.Login)
	r.Post("/api/v1/auth/refresh", authHandler.Refresh)
	r.Post("/api/v1/auth/register", invitationHandler.Register)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(jwtAuth.Middleware)
		r.Post("/api/v1/auth/logout", authHandler.Logout)
		r.With(authzMiddleware.RequireServerAdmin).Post("/api/v1/invitations", invitationHandler.Create)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Printf("%s listening on :%s", serviceName, port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}
}
