package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/product-catalog-api/internal/tools/common"
)

// fakeCatalog mimics the product routes closely enough to exercise every
// traffic operation.
type fakeCatalog struct {
	mu       sync.Mutex
	nextID   uint
	products map[uint]map[string]any
	keys     map[string][]byte
	methods  map[string]int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[uint]map[string]any{}, keys: map[string][]byte{}, methods: map[string]int{}}
}

func (f *fakeCatalog) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			f.methods[req.Method]++
			f.mu.Unlock()
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/products", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"total": len(f.products)})
	})
	r.Post("/products", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, ok := body["id"]; ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		key := req.Header.Get("Idempotency-Key")
		if stored, ok := f.keys[key]; ok && key != "" {
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(stored)
			return
		}
		f.nextID++
		body["id"] = f.nextID
		f.products[f.nextID] = body
		raw, _ := json.Marshal(body)
		f.keys[key] = raw
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(raw)
	})
	withProduct := func(fn func(w http.ResponseWriter, id uint)) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			id, err := strconv.ParseUint(chi.URLParam(req, "id"), 10, 64)
			if err != nil || id == 0 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.mu.Lock()
			defer f.mu.Unlock()
			if _, ok := f.products[uint(id)]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fn(w, uint(id))
		}
	}
	r.Get("/products/{id}", withProduct(func(w http.ResponseWriter, _ uint) { w.WriteHeader(http.StatusOK) }))
	r.Patch("/products/{id}", withProduct(func(w http.ResponseWriter, _ uint) { w.WriteHeader(http.StatusCreated) }))
	r.Delete("/products/{id}", withProduct(func(w http.ResponseWriter, id uint) {
		delete(f.products, id)
		w.WriteHeader(http.StatusOK)
	}))
	return r
}

func TestRunMixedProfileDrivesCRUDTraffic(t *testing.T) {
	catalog := newFakeCatalog()
	srv := httptest.NewServer(catalog.handler())
	defer srv.Close()

	res, err := Run(context.Background(), Config{
		BaseURL:     srv.URL + "/",
		Profile:     "mixed",
		Duration:    600 * time.Millisecond,
		RPS:         200,
		Concurrency: 4,
		Seed:        7,
		Client:      srv.Client(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.TotalRequests == 0 || res.Status2xx == 0 {
		t.Fatalf("expected successful traffic, got %+v", res)
	}
	if res.Status5xx != 0 || res.Failures != 0 {
		t.Fatalf("unexpected failures: %+v", res)
	}
	if res.Created == 0 {
		t.Fatalf("expected created products, got %+v", res)
	}
	if res.TotalRequests != res.Status2xx+res.Status4xx+res.Status5xx {
		t.Fatalf("status classes do not add up: %+v", res)
	}

	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		if catalog.methods[method] == 0 {
			t.Fatalf("expected %s traffic, got %+v", method, catalog.methods)
		}
	}
}

func TestRunErrorHeavyProducesClientErrors(t *testing.T) {
	srv := httptest.NewServer(newFakeCatalog().handler())
	defer srv.Close()

	res, err := Run(context.Background(), Config{
		BaseURL:     srv.URL,
		Profile:     "error-heavy",
		Duration:    300 * time.Millisecond,
		RPS:         100,
		Concurrency: 2,
		Client:      srv.Client(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status4xx == 0 || res.Status2xx != 0 {
		t.Fatalf("expected only client errors against an empty catalog, got %+v", res)
	}
}

func TestRunRejectsUnknownProfile(t *testing.T) {
	if _, err := Run(context.Background(), Config{Profile: "auth"}); err == nil {
		t.Fatal("expected unknown profile error")
	}
}

func TestTickInterval(t *testing.T) {
	cases := map[int]time.Duration{
		1:             time.Second,
		15:            time.Second / 15,
		1_000_000_000: time.Nanosecond,
		2_000_000_000: time.Nanosecond,
	}
	for rps, want := range cases {
		if got := tickInterval(rps); got != want {
			t.Fatalf("tickInterval(%d) = %v, want %v", rps, got, want)
		}
	}
}

func TestRunSurvivesRateAboveOnePerNanosecond(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := Run(context.Background(), Config{
		BaseURL:     srv.URL,
		Duration:    50 * time.Millisecond,
		RPS:         2_000_000_000,
		Concurrency: 1,
		Profile:     "read-heavy",
		Client:      srv.Client(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestIDPool(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := &idPool{}
	if _, ok := p.pick(rng); ok {
		t.Fatal("empty pool must not yield an id")
	}
	p.add(3)
	p.add(5)
	p.remove(3)
	if id, ok := p.pick(rng); !ok || id != 5 {
		t.Fatalf("expected 5, got %d %v", id, ok)
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 201: "2xx", 301: "3xx", 404: "4xx", 413: "4xx", 500: "5xx"}
	for code, want := range cases {
		if got := statusClass(code); got != want {
			t.Fatalf("statusClass(%d)=%s want %s", code, got, want)
		}
	}
}

func TestRunCommandCIOutput(t *testing.T) {
	srv := httptest.NewServer(newFakeCatalog().handler())
	defer srv.Close()

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run", "--ci", "--base-url", srv.URL, "--profile", "read-heavy", "--duration", "200ms", "--rps", "50"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var res common.CIResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v (%s)", err, out.String())
	}
	if !res.OK || len(res.Details) != 7 {
		t.Fatalf("unexpected ci result: %+v", res)
	}
}
