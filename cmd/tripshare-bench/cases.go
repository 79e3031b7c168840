package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"tripshare/migrations"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

var requiredTables = []string{
	"users", "trips", "trip_members", "trip_state_events",
	"ledger_entries", "pricing_rates", "app_settings", "fcm_tokens",
}

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg, httpc: &http.Client{Timeout: 10 * time.Second}}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer r.redis.Close()
	}

	cases := r.cases()
	results := make([]Result, 0, len(cases))
	for _, tc := range cases {
		start := time.Now()
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		if res.Latency == 0 {
			res.Latency = time.Since(start)
		}
		results = append(results, res)
		fmt.Println(res.String())
	}
	return results
}

func (res Result) String() string {
	line := fmt.Sprintf("%-5s %s (%s)", res.Status, res.Name, res.Latency.Round(time.Millisecond))
	if res.Note != "" {
		line += " - " + res.Note
	}
	return line
}

func summarize(results []Result) map[string]int {
	out := map[string]int{}
	for _, r := range results {
		out[r.Status]++
	}
	return out
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: up to date", Run: checkMigrations},
		{Name: "Migration: tables exist", Run: checkTables},
		httpCase("API: health", http.MethodGet, base+"/health", "", nil, http.StatusOK),
		httpCase("API: rejects missing token", http.MethodGet, base+"/api/trips/none", "", nil, http.StatusUnauthorized),
		httpCase("API: fare quote", http.MethodPost, base+"/api/trips/fare", r.cfg.Token, map[string]any{
			"from":         map[string]float64{"lat": 30.0444, "lng": 31.2357},
			"to":           map[string]float64{"lat": 31.2001, "lng": 29.9187},
			"booking_type": "SINGLE",
			"seats":        1,
		}, http.StatusOK),
		{Name: "Concurrency: parallel joins never overbook", Run: func(ctx context.Context, r *Runner) Result {
			return concurrentJoin(ctx, r)
		}},
		{Name: "Perf: health throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, http.MethodGet, base+"/health", "", nil)
		}},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "dsn not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: StatusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass}
}

func checkMigrations(ctx context.Context, r *Runner) Result {
	if r.cfg.DSN == "" {
		return Result{Status: StatusSkip, Note: "dsn not configured"}
	}
	db, err := sql.Open("pgx", r.cfg.DSN)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	defer db.Close()
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	pending, err := provider.HasPending(ctx)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	version, _ := provider.GetDBVersion(ctx)
	if pending {
		return Result{Status: StatusFail, Note: fmt.Sprintf("pending migrations, db at version %d", version)}
	}
	return Result{Status: StatusPass, Note: fmt.Sprintf("version %d", version)}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "dsn not configured"}
	}
	var missing []string
	for _, t := range requiredTables {
		var exists bool
		err := r.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+t).Scan(&exists)
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		if !exists {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return Result{Status: StatusFail, Note: fmt.Sprintf("missing %v", missing)}
	}
	return Result{Status: StatusPass}
}

func httpCase(name, method, url, token string, body any, want int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			if token == "" && want != http.StatusUnauthorized && body != nil {
				return Result{Status: StatusSkip, Note: "no token"}
			}
			start := time.Now()
			code, err := r.do(ctx, method, url, token, body)
			latency := time.Since(start)
			if err != nil {
				return Result{Status: StatusFail, Latency: latency, Note: err.Error()}
			}
			if code != want {
				return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", code, want)}
			}
			return Result{Status: StatusPass, Latency: latency}
		},
	}
}

func (r *Runner) do(ctx context.Context, method, url, token string, body any) (int, error) {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// concurrentJoin fires parallel joins at one trip and then checks the
// seat count in the database never exceeds capacity.
func concurrentJoin(ctx context.Context, r *Runner) Result {
	if r.cfg.Token == "" || r.cfg.TripID == "" || r.db == nil {
		return Result{Status: StatusSkip, Note: "needs -token, -trip and -dsn"}
	}
	url := fmt.Sprintf("%s/api/trips/%s/join", r.cfg.BaseURL, r.cfg.TripID)
	body := map[string]any{"seats": 1}

	var wg sync.WaitGroup
	codes := make([]int, r.cfg.Concurrency)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i], _ = r.do(ctx, http.MethodPost, url, r.cfg.Token, body)
		}(i)
	}
	wg.Wait()

	var seats, capacity int
	err := r.db.QueryRow(ctx, `
		SELECT seats_booked,
		       CASE booking_type WHEN 'SINGLE' THEN 1 WHEN 'DOUBLE' THEN 2 ELSE 3 END
		FROM trips WHERE id = $1`, r.cfg.TripID).Scan(&seats, &capacity)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	ok := 0
	for _, c := range codes {
		if c == http.StatusOK {
			ok++
		}
	}
	note := fmt.Sprintf("accepted=%d seats=%d/%d", ok, seats, capacity)
	if seats > capacity || ok > 1 {
		return Result{Status: StatusFail, Note: note}
	}
	return Result{Status: StatusPass, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, method, url, token string, body any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var mu sync.Mutex
	var latencies []time.Duration
	var errCount int
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				start := time.Now()
				_, err := r.do(ctx, method, url, token, body)
				d := time.Since(start)
				mu.Lock()
				if err != nil {
					errCount++
				} else {
					latencies = append(latencies, d)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(latencies) == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	rps := float64(len(latencies)) / r.cfg.Duration.Seconds()
	return Result{
		Status:  StatusPass,
		Latency: percentile(latencies, 0.5),
		Note:    fmt.Sprintf("rps=%.1f p95=%s errors=%d", rps, percentile(latencies, 0.95).Round(time.Microsecond), errCount),
	}
}

// percentile sorts ds in place.
func percentile(ds []time.Duration, p float64) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
	idx := int(p * float64(len(ds)-1))
	return ds[idx]
}
