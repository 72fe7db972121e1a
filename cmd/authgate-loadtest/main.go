// Command authgate-loadtest measures token validation, revocation and
// lockout bookkeeping throughput against Redis (or an embedded miniredis).
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/account/sqlstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		users       = flag.Int("users", 2000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt:", "redis key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	dir, err := os.MkdirTemp("", "authgate-loadtest")
	if err != nil {
		fmt.Fprintf(os.Stderr, "temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	store, err := sqlstore.Open(ctx, sqlstore.DialectSQLite, filepath.Join(dir, "load.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	cfg := authgate.DefaultConfig()
	cfg.JWT.Secret = []byte("authgate-loadtest-secret")
	cfg.Store.KeyPrefix = *prefix
	cfg.Audit.Enabled = false
	cfg.Account.RegistrationLimit = 0
	// Seeding cost is dominated by hashing; keep it at the floor.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	engine, err := authgate.New().WithConfig(cfg).WithRedis(client).WithAccountStore(store).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", *users)
	startSeed := time.Now()
	tokens := make([]string, *users)
	for i := range tokens {
		name := fmt.Sprintf("load-%d", i)
		res, err := engine.Register(ctx, authgate.RegisterRequest{
			Username: name,
			Password: "load-test-password",
			Email:    name + "@load.test",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		tokens[i] = res.Token
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) error {
		_, err := engine.Validate(ctx, tokens[r.Intn(len(tokens))])
		return err
	})
	lockoutStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, _ int) error {
		_, err := engine.Login(ctx, authgate.LoginRequest{
			LoginType:  "email",
			Principal:  fmt.Sprintf("nobody-%d@load.test", r.Intn(*users)),
			Credential: "wrong",
		})
		if err == nil {
			return fmt.Errorf("unexpected login success")
		}
		return nil
	})
	revokeStats := runPhase(*ops, *concurrency, 4099, func(_ *rand.Rand, i int) error {
		if !engine.Logout(ctx, tokens[i%len(tokens)]) {
			return fmt.Errorf("not revoked")
		}
		return nil
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("lockout", lockoutStats)
	printStats("revoke", revokeStats)
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
