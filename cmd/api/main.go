package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinicbase.org/internal/audit"
	"clinicbase.org/internal/config"
	"clinicbase.org/internal/httpapi"
	"clinicbase.org/internal/obs"
	"clinicbase.org/internal/store/pg"
	"clinicbase.org/internal/sync"
)

var version = "1.0.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("CLINIC_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.PGDSN == "" {
		log.Fatal("CLINIC_PG_DSN is required")
	}

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db := store.DB()

	catalog, err := sync.NewCatalog(sync.ClinicEntities())
	if err != nil {
		log.Fatalf("build entity catalog: %v", err)
	}

	auditStore := audit.NewPGStore(db)
	auditLog := audit.NewLogger(auditStore)

	for _, desc := range sync.ClinicEntities() {
		if !desc.Pushable {
			continue
		}
		var adapter sync.Adapter
		if desc.ServerTable == "audit_logs" {
			adapter = audit.NewPushAdapter(auditStore)
		} else {
			adapter = pg.NewEntityAdapter(db, desc)
		}
		if err := catalog.Register(desc.ServerTable, adapter); err != nil {
			log.Fatalf("register adapter for %s: %v", desc.ServerTable, err)
		}
	}

	window := sync.NewHistoryWindow(cfg.MaxHistoryDays)
	puller := sync.NewDeltaComputer(catalog, window, store)
	ingester := sync.NewIngester(catalog, audit.NewTracer(auditLog))

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, puller, ingester)
	api.ConfigureRateLimit(cfg.RateBurst, cfg.RatePerSec)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting clinicbase-api %s on %s", version, srv.Addr)

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
	_ = store.Close()
	log.Println("Stopped")
}
