package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"FanLedger/internal/config"
	"FanLedger/internal/observability"
	"FanLedger/internal/persistence"
	"FanLedger/internal/projection"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	down := flag.Bool("down", false, "roll back the most recent migration")
	rebuild := flag.Bool("rebuild-projections", false, "rebuild projection tables from the event log")
	flag.Parse()

	log := observability.NewLogger("migrate")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}

	migrator := persistence.NewMigrator(db, cfg.Persistence.MigrationsDir)

	switch {
	case *down:
		if err := migrator.Down(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrate down")
		}
		log.Info().Msg("rolled back one migration")

	case *rebuild:
		if err := projection.Rebuild(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("rebuild projections")
		}
		log.Info().Msg("projections rebuilt from event log")

	default:
		if err := migrator.Up(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrate up")
		}
		log.Info().Msg("migrations applied")
	}
}
