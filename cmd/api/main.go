package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"nvision.io/internal/auth"
	"nvision.io/internal/config"
	"nvision.io/internal/guard"
	"nvision.io/internal/httpapi"
	"nvision.io/internal/obs"
	"nvision.io/internal/store"
	"nvision.io/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Connect to the directory database if a DSN is set, so /readyz can
	// ping it. Without a DSN the in-memory directory serves lookups.
	var db *sql.DB
	var dir store.Directory
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		dir, err = pg.NewDirectory(db)
		if err != nil {
			log.Fatalf("directory: %v", err)
		}
	} else {
		dir = store.NewMemoryDirectory()
	}

	tokens, err := auth.NewTokenService(cfg.AuthSecret,
		auth.WithIssuer(cfg.Issuer),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	registry := auth.NewRegistry()

	g, err := guard.NewGuard(cfg.CSRFSecret,
		guard.WithSessionTimeout(cfg.SessionTimeout),
		guard.WithBruteForceThresholds(cfg.MaxFailedAttempts, cfg.SuspiciousThreshold),
		guard.WithBlockDuration(cfg.BlockDuration),
		guard.WithCSRFMaxAge(cfg.CSRFMaxAge),
	)
	if err != nil {
		log.Fatalf("guard: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Guard:     g,
		Tokens:    tokens,
		Registry:  registry,
		Directory: dir,
		Ready:     httpapi.ReadyProbe{DB: db},
		Version:   version,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting nvision-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	g.Close()
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
