// migrate applies or rolls back the embedded schema migrations (documents, print_history).
//
//	go run ./cmd/migrate -direction up
//	go run ./cmd/migrate -status
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"print-relay/internal/config"
	"print-relay/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	status := flag.Bool("status", false, "Print the current schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; migrations need Postgres (in-memory mode has no schema)")
		os.Exit(1)
	}

	if *status {
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		fmt.Printf("version %d (dirty=%v)\n", v, dirty)
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return
		}
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	v, _, err := migrate.Version(cfg.DatabaseURL)
	if err == nil {
		fmt.Printf("migrated %s to version %d\n", *direction, v)
	}
}
