package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/analytics-import/internal/api"
	"github.com/ignite/analytics-import/internal/config"
	"github.com/ignite/analytics-import/internal/eventstore"
	"github.com/ignite/analytics-import/internal/repository/postgres"
	"github.com/ignite/analytics-import/internal/service/importjob"
	"github.com/ignite/analytics-import/internal/storage"
	"github.com/ignite/analytics-import/internal/worker"
)

// fixedWindow resolves every site to the same import window until the
// billing integration supplies per-site tiers.
type fixedWindow int

func (f fixedWindow) WindowMonths(_ context.Context, _ string) (int, error) {
	return int(f), nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres: import records and API keys
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Snowflake: imported events
	events, err := eventstore.NewClient(eventstore.Config{
		Account:   cfg.Snowflake.Account,
		User:      cfg.Snowflake.User,
		Password:  cfg.Snowflake.Password,
		Database:  cfg.Snowflake.Database,
		Schema:    cfg.Snowflake.Schema,
		Warehouse: cfg.Snowflake.Warehouse,
	})
	if err != nil {
		log.Fatalf("Failed to connect to event store: %v", err)
	}
	defer events.Close()

	// Redis: progress cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// File storage for uploaded artifacts
	files, err := storage.NewStore(ctx, storage.Config{
		LocalDir:   cfg.Storage.LocalDir,
		Bucket:     cfg.Storage.Bucket,
		Region:     cfg.Storage.Region,
		AWSProfile: cfg.Storage.AWSProfile,
	})
	if err != nil {
		log.Fatalf("Failed to initialize file storage: %v", err)
	}

	repo := postgres.NewImportRecordRepo(db)
	svc := importjob.NewService(repo, events, fixedWindow(24))
	svc.AttachFileStore(files, cfg.Storage.Prefix(), cfg.Storage.Remote())

	// Reclamation: daily file cleanup for old terminal imports
	reclamation := worker.NewReclamationWorker(repo, files, cfg.Storage.Prefix(), cfg.Storage.Remote())
	reclamation.SetRetention(time.Duration(*cfg.Reclamation.RetentionDays) * 24 * time.Hour)
	reclamation.SetRunHour(*cfg.Reclamation.RunHourUTC)
	if cfg.Reclamation.Enabled {
		go reclamation.Start(ctx)
	} else {
		log.Println("Reclamation worker disabled; manual trigger remains available")
	}

	imports := api.NewImportHandlers(svc, api.NewProgressStore(redisClient))
	admin := api.NewAdminHandlers(reclamation, cfg.Auth.OpsToken)
	server := api.NewServer(imports, admin, postgres.NewAPIKeyAuthorizer(db))

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	// Cancel background tasks; an in-flight reclamation pass completes.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
