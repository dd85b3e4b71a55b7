package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/product-catalog-api/internal/observability"
)

const DefaultBaseURL = "http://localhost:7099"

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
	Client      *http.Client
}

type Result struct {
	TotalRequests int64
	Failures      int64
	Status2xx     int64
	Status4xx     int64
	Status5xx     int64
	Created       int64
	Replayed      int64
}

type operation string

const (
	opList         operation = "list"
	opGet          operation = "get"
	opCreate       operation = "create"
	opUpdate       operation = "update"
	opDelete       operation = "delete"
	opReplay       operation = "replay"
	opInvalidID    operation = "invalid_id"
	opUnknownField operation = "unknown_field"
	opMissing      operation = "missing"
)

func operationsForProfile(profile string) []operation {
	switch strings.ToLower(profile) {
	case "", "mixed":
		return []operation{opList, opGet, opGet, opCreate, opUpdate, opDelete, opReplay}
	case "read-heavy":
		return []operation{opList, opList, opGet, opGet, opGet, opCreate}
	case "write-heavy":
		return []operation{opCreate, opCreate, opUpdate, opUpdate, opDelete, opReplay}
	case "error-heavy":
		return []operation{opInvalidID, opUnknownField, opMissing, opDelete, opGet}
	default:
		return nil
	}
}

// idPool tracks product ids this run has created so reads and writes
// target rows that exist.
type idPool struct {
	mu  sync.Mutex
	ids []uint
}

func (p *idPool) add(id uint) {
	p.mu.Lock()
	p.ids = append(p.ids, id)
	p.mu.Unlock()
}

func (p *idPool) pick(rng *rand.Rand) (uint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ids) == 0 {
		return 0, false
	}
	return p.ids[rng.Intn(len(p.ids))], true
}

func (p *idPool) remove(id uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, v := range p.ids {
		if v == id {
			p.ids = append(p.ids[:i], p.ids[i+1:]...)
			return
		}
	}
}

type counters struct {
	total, failures, s2xx, s4xx, s5xx, created, replayed atomic.Int64
}

func (c *counters) result() Result {
	return Result{
		TotalRequests: c.total.Load(),
		Failures:      c.failures.Load(),
		Status2xx:     c.s2xx.Load(),
		Status4xx:     c.s4xx.Load(),
		Status5xx:     c.s5xx.Load(),
		Created:       c.created.Load(),
		Replayed:      c.replayed.Load(),
	}
}

type generator struct {
	cfg        Config
	client     *http.Client
	pool       *idPool
	stats      *counters
	replayKey  string
	replayBody map[string]any
}

// Run drives product traffic against cfg.BaseURL until cfg.Duration
// elapses or ctx is cancelled.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	ops := operationsForProfile(cfg.Profile)
	if len(ops) == 0 {
		return Result{}, fmt.Errorf("unknown profile: %s", cfg.Profile)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	g := &generator{
		cfg:        cfg,
		client:     client,
		pool:       &idPool{},
		stats:      &counters{},
		replayKey:  uuid.NewString(),
		replayBody: sampleProduct(rand.New(rand.NewSource(cfg.Seed))),
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	jobs := make(chan operation, cfg.Concurrency*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(cfg.Seed + int64(worker)))
			for op := range jobs {
				g.execute(ctx, rng, op)
			}
		}(i)
	}

	ticker := time.NewTicker(tickInterval(cfg.RPS))
	defer ticker.Stop()
	picker := rand.New(rand.NewSource(cfg.Seed))
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return g.stats.result(), nil
		case <-ticker.C:
			select {
			case jobs <- ops[picker.Intn(len(ops))]:
			case <-ctx.Done():
			}
		}
	}
}

// tickInterval spaces requests evenly at rps, saturating at one per
// nanosecond.
func tickInterval(rps int) time.Duration {
	interval := time.Second / time.Duration(rps)
	if interval <= 0 {
		return time.Nanosecond
	}
	return interval
}

func (g *generator) execute(ctx context.Context, rng *rand.Rand, op operation) {
	switch op {
	case opList:
		g.do(ctx, http.MethodGet, "/products", nil, nil)
	case opGet:
		g.do(ctx, http.MethodGet, g.productPath(rng), nil, nil)
	case opCreate:
		g.create(ctx, sampleProduct(rng), uuid.NewString())
	case opReplay:
		g.create(ctx, g.replayBody, g.replayKey)
	case opUpdate:
		body := map[string]any{"price": float64(rng.Intn(100000)) / 100}
		g.do(ctx, http.MethodPatch, g.productPath(rng), body, nil)
	case opDelete:
		id, ok := g.pool.pick(rng)
		if !ok {
			id = uint(rng.Intn(1000) + 1)
		}
		path := "/products/" + strconv.FormatUint(uint64(id), 10)
		if status := g.do(ctx, http.MethodDelete, path, nil, nil); status == http.StatusOK {
			g.pool.remove(id)
		}
	case opInvalidID:
		g.do(ctx, http.MethodGet, "/products/not-a-number", nil, nil)
	case opUnknownField:
		body := sampleProduct(rng)
		body["id"] = 1
		g.do(ctx, http.MethodPost, "/products", body, nil)
	case opMissing:
		g.do(ctx, http.MethodGet, "/products/999999999", nil, nil)
	}
}

// create posts body under key. Reusing a key with the same body replays
// the first response instead of inserting again.
func (g *generator) create(ctx context.Context, body map[string]any, key string) {
	var created struct {
		ID uint `json:"id"`
	}
	status := g.doWithHeaders(ctx, http.MethodPost, "/products", body, map[string]string{"Idempotency-Key": key}, &created)
	if status == http.StatusCreated && created.ID > 0 {
		g.pool.add(created.ID)
	}
}

func (g *generator) productPath(rng *rand.Rand) string {
	id, ok := g.pool.pick(rng)
	if !ok {
		id = 1
	}
	return "/products/" + strconv.FormatUint(uint64(id), 10)
}

func (g *generator) do(ctx context.Context, method, path string, body map[string]any, out any) int {
	return g.doWithHeaders(ctx, method, path, body, nil, out)
}

func (g *generator) doWithHeaders(ctx context.Context, method, path string, body map[string]any, headers map[string]string, out any) int {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			g.stats.failures.Add(1)
			return 0
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
	if err != nil {
		g.stats.failures.Add(1)
		return 0
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			g.stats.failures.Add(1)
		}
		return 0
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	g.stats.total.Add(1)
	class := statusClass(resp.StatusCode)
	switch class {
	case "2xx":
		g.stats.s2xx.Add(1)
	case "4xx":
		g.stats.s4xx.Add(1)
	case "5xx":
		g.stats.s5xx.Add(1)
	}
	if method == http.MethodPost && resp.StatusCode == http.StatusCreated {
		if resp.Header.Get("X-Idempotency-Replayed") == "true" {
			g.stats.replayed.Add(1)
		} else {
			g.stats.created.Add(1)
		}
	}
	observability.RecordLoadgenRequest(ctx, class, g.cfg.Profile)
	return resp.StatusCode
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func sampleProduct(rng *rand.Rand) map[string]any {
	n := rng.Intn(1_000_000)
	return map[string]any{
		"title":       fmt.Sprintf("Loadgen Product %d", n),
		"description": "Synthetic product created by loadgen",
		"category":    "loadgen",
		"isAvailable": n%2 == 0,
		"image":       fmt.Sprintf("https://example.com/images/%d.png", n),
		"price":       float64(n%100000) / 100,
	}
}
