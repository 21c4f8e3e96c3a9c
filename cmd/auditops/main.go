package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"clinicbase.org/internal/archive"
	"clinicbase.org/internal/audit"
	"clinicbase.org/internal/config"
)

// auditops runs the maintenance jobs over the audit log: hash verification
// and archival export. Both are safe to run concurrently with the API and
// with other instances of themselves.
func main() {
	log.SetFlags(0)
	var (
		dsn       = flag.String("dsn", os.Getenv("CLINIC_PG_DSN"), "PostgreSQL DSN")
		batchSize = flag.Int("batch-size", 0, "Max rows per verification run (0 = default)")
		olderThan = flag.Duration("older-than", 90*24*time.Hour, "Export entries older than this")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or CLINIC_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: auditops [verify|archive]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	switch flag.Arg(0) {
	case "verify":
		report, err := audit.NewVerifier(db, *batchSize).Run(ctx)
		if err != nil {
			log.Fatalf("verify: %v", err)
		}
		fmt.Printf("verified=%d failed=%d\n", report.Verified, report.Failed)
		if report.Failed > 0 {
			os.Exit(1)
		}
	case "archive":
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		sink, err := archive.NewS3Sink(ctx, archive.S3Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			log.Fatalf("archive sink: %v", err)
		}
		cutoff := time.Now().UTC().Add(-*olderThan)
		count, err := audit.NewExporter(db, sink).Export(ctx, cutoff)
		if err != nil {
			log.Fatalf("archive: %v", err)
		}
		fmt.Printf("exported=%d cutoff=%s\n", count, cutoff.Format(time.RFC3339))
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
}
