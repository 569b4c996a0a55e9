package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mfleet/streamvault/internal/api"
	"github.com/mfleet/streamvault/internal/app"
	"github.com/mfleet/streamvault/internal/cache"
	"github.com/mfleet/streamvault/internal/config"
	"github.com/mfleet/streamvault/internal/db"
	"github.com/mfleet/streamvault/internal/jobs"
	"github.com/mfleet/streamvault/internal/mdb"
	"github.com/mfleet/streamvault/internal/merge"
	"github.com/mfleet/streamvault/internal/progress"
	"github.com/mfleet/streamvault/internal/ratelimit"
	"github.com/mfleet/streamvault/internal/repository"
	"github.com/mfleet/streamvault/internal/scheduler"
	"github.com/mfleet/streamvault/internal/version"
)

func main() {
	godotenv.Load()

	ver := version.Load()
	log.Printf("StreamVault %s starting...", ver.Version)

	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	cfg.MergeFromDB(database)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration invalid: %v", err)
	}

	store, err := cache.New(cfg.CacheDir)
	if err != nil {
		log.Fatalf("cache init failed: %v", err)
	}

	limiter := ratelimit.New(cfg.MDBConcurrent, time.Duration(cfg.MDBDurationSecs)*time.Second)
	mdbClient := mdb.NewClient(cfg.MDBBaseURL, cfg.MDBToken, store, limiter)
	matcher := mdb.NewMatcher(mdbClient)

	catalog := repository.NewCatalog(database)

	if n, err := catalog.Jobs.ResetInProgressJobs(); err != nil {
		log.Printf("reset in-progress jobs: %v", err)
	} else if n > 0 {
		log.Printf("cancelled %d stale running jobs from previous run", n)
	}

	hub := api.NewHub()
	coord := progress.New(30*time.Second, hub)
	appCtx := app.New(cfg, database, catalog, store, mdbClient, coord)
	engine := merge.New(catalog, mdbClient)

	queue := jobs.NewQueue(cfg.RedisAddr, cfg.WorkerConcurrency)
	sched := scheduler.New(catalog.Jobs, queue)
	queue.RegisterHandler(jobs.TaskJobRun, jobs.NewJobHandler(sched))

	registry := jobs.NewRegistry(appCtx, sched, queue, engine, matcher)
	if err := registry.Bootstrap(); err != nil {
		log.Fatalf("job bootstrap failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queue.Start(ctx); err != nil {
		log.Fatalf("worker start failed: %v", err)
	}
	sched.Start(time.Minute)

	srv := api.NewServer(cfg, appCtx, sched, queue, catalog.Jobs, catalog.Providers, hub)
	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("listening on :%d", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	sched.Stop()
	queue.Stop()
}
