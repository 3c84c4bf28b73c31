// File: cmd/seed/main.go
//
// Seeds the gateway settings row for a fresh environment. The service
// itself never writes settings; this tool is how an operator bootstraps a
// test deployment.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"resource-marketplace/internal/config"
	pg "resource-marketplace/internal/infra/db/postgres"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	apiKey := flag.String("api-key", "", "gateway API key (required)")
	webhookSecret := flag.String("webhook-secret", "", "HMAC secret for webhook signatures")
	live := flag.Bool("live", false, "use the live gateway environment")
	flag.Parse()

	if *apiKey == "" {
		log.Fatal("usage: seed -api-key <key> [-webhook-secret <secret>] [-live]")
	}

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	var count int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM gateway_settings WHERE active;`).Scan(&count); err != nil {
		log.Fatalf("check settings: %v", err)
	}
	if count > 0 {
		fmt.Println("active gateway settings already present. No changes.")
		return
	}

	const q = `INSERT INTO gateway_settings
  (api_key, webhook_secret, live, base_url, retry_count, retry_delay_seconds, active, updated_at)
  VALUES ($1, $2, $3, '', 3, 5, TRUE, now());`
	if _, err := pool.Exec(ctx, q, *apiKey, *webhookSecret, *live); err != nil {
		log.Fatalf("insert settings: %v", err)
	}
	fmt.Printf("gateway settings seeded (live=%v)\n", *live)
}
