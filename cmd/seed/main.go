// seed adds phone numbers to the SMS whitelist and can print a bcrypt hash for ADMIN_PASSWORD.
// Idempotent: numbers already on the whitelist are skipped.
//
//	go run ./cmd/seed -number +15551234567 -number +15557654321
//	go run ./cmd/seed -hash 'new admin password'
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"print-relay/internal/config"
	"print-relay/internal/db"
	"print-relay/internal/docstore"
	"print-relay/internal/security"
	"print-relay/internal/whitelist"
)

type numberList []string

func (n *numberList) String() string { return strings.Join(*n, ",") }

func (n *numberList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("empty number")
	}
	*n = append(*n, v)
	return nil
}

func main() {
	var numbers numberList
	flag.Var(&numbers, "number", "phone number to whitelist (repeatable)")
	hash := flag.String("hash", "", "print a bcrypt hash of this secret and exit")
	cost := flag.Int("cost", 0, "bcrypt cost for -hash (0 uses the default)")
	flag.Parse()

	if *hash != "" {
		h, err := security.NewHasher(*cost).Hash([]byte(*hash))
		if err != nil {
			log.Fatalf("hash: %v", err)
		}
		fmt.Println(h)
		return
	}
	if len(numbers) == 0 {
		log.Fatal("seed: at least one -number is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	lookup := whitelist.NewStoreLookup(docstore.NewPostgresStore(conn))

	added := 0
	for _, number := range numbers {
		ok, err := lookup.IsWhitelisted(ctx, number)
		if err != nil {
			log.Fatalf("seed check %s: %v", number, err)
		}
		if ok {
			log.Printf("%s already whitelisted. Skipping.", number)
			continue
		}
		if err := lookup.Add(ctx, uuid.New().String(), number); err != nil {
			log.Fatalf("seed: %v", err)
		}
		added++
	}
	log.Printf("Seed complete: %d added, %d skipped.", added, len(numbers)-added)
}
