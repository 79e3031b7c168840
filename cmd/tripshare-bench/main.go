// README: Smoke and load runner against a deployed tripshare stack; prints one line per case.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	results := NewRunner(cfg).RunAll(ctx)

	fmt.Println("\n== Summary ==")
	s := summarize(results)
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", s[StatusPass], s[StatusFail], s[StatusSkip])

	if s[StatusFail] > 0 || (cfg.Strict && s[StatusSkip] > 0) {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL     string
	DSN         string
	RedisAddr   string
	Token       string
	TripID      string
	Strict      bool
	Timeout     time.Duration
	Concurrency int
	Duration    time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("TRIPSHARE_BENCH_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", envOrDefault("TRIPSHARE_DB_DSN", ""), "Postgres DSN")
	flag.StringVar(&cfg.RedisAddr, "redis", envOrDefault("TRIPSHARE_REDIS_ADDR", ""), "Redis address")
	flag.StringVar(&cfg.Token, "token", envOrDefault("TRIPSHARE_BENCH_TOKEN", ""), "Firebase ID token for authenticated cases")
	flag.StringVar(&cfg.TripID, "trip", envOrDefault("TRIPSHARE_BENCH_TRIP", ""), "OPEN trip id for the concurrent join case")
	flag.BoolVar(&cfg.Strict, "strict", false, "Fail on skipped cases")
	flag.DurationVar(&cfg.Timeout, "timeout", 60*time.Second, "Total timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", 20, "Concurrency for load cases")
	flag.DurationVar(&cfg.Duration, "duration", 10*time.Second, "Duration for load cases")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
