package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/samirrijal/overlapscan/internal/adapters/postgres"
	"github.com/samirrijal/overlapscan/internal/pkg/config"
	"github.com/samirrijal/overlapscan/internal/pkg/logging"
)

const usage = "usage: migrate <up|down|version|force N> [migrations-dir]"

func main() {
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	cfg, err := config.Load("overlapscan-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, "text", "")

	args := os.Args[1:]
	dir := "migrations"
	if args[0] == "force" {
		if len(args) < 2 {
			log.Fatal(usage)
		}
		if len(args) > 2 {
			dir = args[2]
		}
	} else if len(args) > 1 {
		dir = args[1]
	}

	m, err := postgres.NewMigrator(cfg.Database.DSN(), dir)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	defer m.Close()

	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "force":
		var v int
		if v, err = strconv.Atoi(args[1]); err == nil {
			err = m.Force(v)
		}
	case "version":
	default:
		log.Fatalf("unknown command: %s\n%s", args[0], usage)
	}
	if err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		log.Fatalf("version: %v", err)
	}
	fmt.Printf("version %d (dirty=%t)\n", version, dirty)
}
