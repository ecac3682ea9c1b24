package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eclosion/backend/internal/api"
	"github.com/eclosion/backend/internal/config"
	"github.com/eclosion/backend/internal/database"
	"github.com/eclosion/backend/internal/metrics"
	"github.com/eclosion/backend/internal/middleware"
	"github.com/eclosion/backend/internal/notes"
	"github.com/eclosion/backend/internal/recurring"
	"github.com/eclosion/backend/internal/refunds"
	"github.com/eclosion/backend/internal/scheduler"
	"github.com/eclosion/backend/internal/security"
	"github.com/eclosion/backend/internal/session"
	"github.com/eclosion/backend/internal/upstream"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	log.Println("🔥 Starting Eclosion backend...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Database open failed: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}

	// 1. Core services

	sess := session.New()
	credsRepo := session.NewRepository(db)
	notesRepo := notes.NewRepository(db)

	securitySvc := security.NewService(
		db,
		cfg.Security.GeoEndpoint,
		time.Duration(cfg.Security.GeoTimeoutSeconds)*time.Second,
		cfg.Security.EventRetentionDays,
	)
	securitySvc.CleanupOldEvents()

	upstreamClient := upstream.NewHTTPClient(cfg.Upstream.BaseURL, func() string {
		return cfg.Upstream.Token
	})
	refundsSvc := refunds.NewService(refunds.NewRepository(db), upstreamClient)

	targetStore := recurring.NewStore(db)
	calculator := recurring.NewCalculator(targetStore)

	m := metrics.NewMetrics()
	securitySvc.SetLockoutGauge(func(active int) {
		m.ActiveLockouts.Set(float64(active))
	})

	// 2. Background sync

	sched := scheduler.New(scheduler.Config{
		FullInterval:  time.Duration(cfg.Sync.FullIntervalMinutes) * time.Minute,
		LightInterval: time.Duration(cfg.Sync.LightIntervalMinutes) * time.Minute,
		FullSync:      timedSync(m, "full", fullSync(context.Background(), notesRepo, upstreamClient)),
		LightSync:     timedSync(m, "light", lightSync(context.Background(), refundsSvc)),
		SessionActive: sess.Active,
	})
	sched.Start()
	defer sched.Stop()

	// 3. HTTP surface

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		MaxCallsPerMinute: cfg.RateLimit.UnlockPerMinute,
	})

	server := api.NewServer(api.Deps{
		Notes:     notesRepo,
		Refunds:   refundsSvc,
		Security:  securitySvc,
		Recurring: calculator,
		Targets:   targetStore,
		Session:   sess,
		Creds:     credsRepo,
		Upstream:  upstreamClient,
		Limiter:   limiter,
		Metrics:   m,
		OnUnlock:  sched.RunFullNow,
	})

	go func() {
		if err := server.Start(cfg.Server.Port); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// 4. Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

// fullSync reconciles known categories against upstream, archiving notes
// for categories that no longer exist.
func fullSync(ctx context.Context, notesRepo *notes.Repository, client *upstream.HTTPClient) func() {
	return func() {
		groups, err := client.GetCategoryGroups(ctx)
		if err != nil {
			log.Printf("Full sync: category fetch failed: %v", err)
			return
		}

		currentIDs := make(map[string]string)
		for _, group := range groups {
			if group.ID != "" {
				currentIDs[group.ID] = group.Name
			}
			for _, cat := range group.Categories {
				if cat.ID != "" {
					currentIDs[cat.ID] = cat.Name
				}
			}
		}

		result, err := notesRepo.SyncCategories(currentIDs)
		if err != nil {
			log.Printf("Full sync: category sync failed: %v", err)
			return
		}
		if result.ArchivedCount > 0 {
			log.Printf("Full sync: archived %d notes for deleted categories", result.ArchivedCount)
		}
	}
}

// lightSync refreshes the pending-refund badge count.
func lightSync(ctx context.Context, refundsSvc *refunds.Service) func() {
	return func() {
		if _, err := refundsSvc.GetPendingCount(ctx); err != nil {
			log.Printf("Light sync: pending count refresh failed: %v", err)
		}
	}
}

func timedSync(m *metrics.Metrics, job string, run func()) func() {
	return func() {
		start := time.Now()
		run()
		m.RecordSync(job, nil, time.Since(start).Seconds())
	}
}
