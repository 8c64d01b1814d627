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

	"estatedesk.org/internal/audit"
	"estatedesk.org/internal/auth"
	"estatedesk.org/internal/httpapi"
	"estatedesk.org/internal/obs"
	"estatedesk.org/internal/ratelimit"
	"estatedesk.org/internal/recommend"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("ESTATEDESK_AUTH_SECRET")
	if len(secret) < 32 {
		log.Fatal("ESTATEDESK_AUTH_SECRET must be set to at least 32 bytes")
	}

	// Postgres is optional: without a DSN the service runs on the in-memory
	// store, which is enough for local development.
	var db *sql.DB
	if dsn := os.Getenv("ESTATEDESK_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var store auth.Store
	if db != nil {
		store = auth.NewPGStore(db)
	} else {
		store = auth.NewInMemoryStore()
		log.Print("no ESTATEDESK_PG_DSN set, using in-memory store")
	}

	// Security events go to the JSON log, and to Postgres when available,
	// through an async recorder so login latency never depends on the sink.
	sinks := audit.Multi{audit.NewLogRecorder()}
	if db != nil {
		sinks = append(sinks, audit.NewPGRecorder(db))
	}
	recorder := audit.NewAsyncRecorder(sinks, 256)
	defer recorder.Close()

	limiter := ratelimit.New()
	stopJanitor := limiter.Janitor(time.Minute, 15*time.Minute)
	defer stopJanitor()

	validator := auth.NewValidator(store, limiter, recorder)
	issuer, err := auth.NewTokenIssuer([]byte(secret))
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}
	authSvc, err := auth.NewService(store, validator, issuer, recorder)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	recommender := recommend.NewEngine(recommend.DefaultCatalog())
	if path := os.Getenv("ESTATEDESK_PROJECTS_FILE"); path != "" {
		recommender, err = recommend.LoadFile(path)
		if err != nil {
			log.Fatalf("load project catalog: %v", err)
		}
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, authSvc, recommender)

	addr := os.Getenv("ESTATEDESK_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting estatedesk-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
