package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"ms-registration/internal/config"
	"ms-registration/internal/database/migrations"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/registration/db"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const usage = `usage: migrate [flags] <command>

commands:
  up            apply every pending migration
  down          roll back every migration
  to <version>  migrate up or down to a version (PostgreSQL only)
  reset         drop and recreate the schema
`

func main() {
	seed := flag.Bool("seed", false, "insert a sample event after migrating")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.NewWriter("migrate", os.Stdout, logger.ParseLevel(cfg.Log.Level))
	ctx := context.Background()

	bunDB, err := open(cfg.Database)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if err := run(ctx, cfg, bunDB, log, flag.Args()); err != nil {
		log.Fatal("MIGRATION", err.Error())
	}
	if *seed {
		if err := seedEvent(ctx, bunDB, log); err != nil {
			log.Fatal("SEED", err.Error())
		}
	}
	log.Info("MIGRATION", "✅ Done.")
}

func open(cfg config.DatabaseConfig) (*bun.DB, error) {
	if cfg.Driver == "sqlite" {
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	}
	sqldb, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := sqldb.Ping(); err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// run executes one command. SQLite has no migration history; its schema is
// built straight from the models.
func run(ctx context.Context, cfg *config.Config, bunDB *bun.DB, log *logger.Logger, args []string) error {
	if cfg.Database.Driver == "sqlite" {
		switch args[0] {
		case "up":
			return db.CreateSchema(ctx, bunDB)
		case "down":
			return db.DropSchema(ctx, bunDB)
		case "reset":
			if err := db.DropSchema(ctx, bunDB); err != nil {
				return err
			}
			return db.CreateSchema(ctx, bunDB)
		default:
			return fmt.Errorf("command %q is not supported for sqlite", args[0])
		}
	}

	runner := migrations.NewRunner(bunDB, migrations.Options{Dir: cfg.Migrations.Dir}, log)
	defer runner.Close()

	switch args[0] {
	case "up":
		return runner.RunMigrations()
	case "down":
		return runner.MigrateDown()
	case "reset":
		if err := runner.MigrateDown(); err != nil {
			return err
		}
		return runner.RunMigrations()
	case "to":
		if len(args) < 2 {
			return fmt.Errorf("to: missing version")
		}
		version, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("to: invalid version %q: %w", args[1], err)
		}
		return runner.MigrateTo(uint(version))
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func seedEvent(ctx context.Context, bunDB *bun.DB, log *logger.Logger) error {
	ev := &models.Event{
		ID:         uuid.NewString(),
		Name:       "GameOne Summer LAN",
		Capacity:   40,
		PriceMinor: 45000,
		Currency:   "CZK",
		StartDate:  time.Now().AddDate(0, 1, 0),
		EndDate:    time.Now().AddDate(0, 1, 2),
		CreatedAt:  time.Now(),
	}
	if err := db.New(bunDB).CreateEvent(ctx, ev); err != nil {
		return err
	}
	log.Info("SEED", fmt.Sprintf("Created event %s (%s)", ev.Name, ev.ID))
	return nil
}
