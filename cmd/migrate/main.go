package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/umit144/license-sync/internal/config"
	"github.com/umit144/license-sync/internal/database"
)

func main() {
	steps := flag.Int("steps", 0, "number of migrations to roll back with down (0 = all)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-steps n] up|down|version\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadServer(".env")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.DB.Close()

	m, err := database.NewMigrator(context.Background(), db)
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	defer database.CloseMigrator(m)

	switch flag.Arg(0) {
	case "up":
		err = m.Up()
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return
		}
		if verr != nil {
			log.Fatalf("Failed to read version: %v", verr)
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		return
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("migration %s complete", flag.Arg(0))
}
