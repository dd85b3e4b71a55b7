package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/product-catalog-api/internal/http/response"
	"github.com/sandeepkv93/product-catalog-api/internal/observability"
	"github.com/sandeepkv93/product-catalog-api/internal/service"
)

const (
	idempotencyHeader         = "Idempotency-Key"
	idempotencyReplayedHeader = "X-Idempotency-Replayed"
	maxIdempotencyKeyLength   = 128
	defaultPendingTTL         = time.Minute
	storeWriteTimeout         = 5 * time.Second
)

type IdempotencyMiddleware struct {
	store      service.IdempotencyStore
	ttl        time.Duration
	pendingTTL time.Duration
}

type IdempotencyOption func(*IdempotencyMiddleware)

// WithPendingTTL bounds how long an unfinished claim blocks its key.
func WithPendingTTL(d time.Duration) IdempotencyOption {
	return func(m *IdempotencyMiddleware) {
		if d > 0 {
			m.pendingTTL = d
		}
	}
}

// NewIdempotencyMiddleware keeps completed responses for ttl. Claims that
// never complete expire after the pending TTL, one minute unless set.
func NewIdempotencyMiddleware(store service.IdempotencyStore, ttl time.Duration, opts ...IdempotencyOption) *IdempotencyMiddleware {
	m := &IdempotencyMiddleware{store: store, ttl: ttl, pendingTTL: defaultPendingTTL}
	for _, opt := range opts {
		opt(m)
	}
	if m.pendingTTL > ttl {
		m.pendingTTL = ttl
	}
	return m
}

// Middleware de-duplicates requests carrying an Idempotency-Key header.
// Requests without the header pass through untouched.
func (m *IdempotencyMiddleware) Middleware(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if key == "" {
				observability.RecordIdempotencyEvent(r.Context(), scope, "skipped")
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLength {
				observability.RecordIdempotencyEvent(r.Context(), scope, "invalid_key")
				response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid Idempotency-Key header", map[string]int{"max_length": maxIdempotencyKeyLength})
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				observability.RecordIdempotencyEvent(r.Context(), scope, "read_error")
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					response.Error(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
					return
				}
				response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := fingerprintRequest(r, scope, body)
			audit := func(event, action, outcome, reason string, extra ...any) {
				observability.EmitAudit(r, observability.AuditInput{
					EventName:  event,
					TargetType: "idempotency_key",
					TargetID:   shortHash(key),
					Action:     action,
					Outcome:    outcome,
					Reason:     reason,
				}, append([]any{"scope", scope}, extra...)...)
			}

			begin, err := m.store.Begin(r.Context(), scope, key, fingerprint, m.pendingTTL)
			if err != nil {
				observability.RecordIdempotencyEvent(r.Context(), scope, "store_error")
				audit("idempotency.check", "check", "failure", "store_error", "error", err.Error())
				response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "idempotency check failed", nil)
				return
			}

			switch begin.State {
			case service.IdempotencyStateConflict:
				observability.RecordIdempotencyEvent(r.Context(), scope, "conflict")
				audit("idempotency.check", "check", "rejected", "fingerprint_conflict")
				response.Error(w, r, http.StatusConflict, "CONFLICT", "idempotency key reuse with different payload", nil)
				return
			case service.IdempotencyStateInProgress:
				observability.RecordIdempotencyEvent(r.Context(), scope, "in_progress")
				audit("idempotency.check", "check", "rejected", "request_in_progress")
				response.Error(w, r, http.StatusConflict, "CONFLICT", "request with this idempotency key is in progress", nil)
				return
			case service.IdempotencyStateReplay:
				observability.RecordIdempotencyEvent(r.Context(), scope, "replayed")
				audit("idempotency.replay", "replay", "success", "stored_response")
				writeStoredResponse(w, begin.Cached)
				return
			}

			rec := newCaptureWriter(w)
			defer func() {
				if p := recover(); p != nil {
					m.release(r, scope, key, fingerprint, audit)
					panic(p)
				}
			}()
			next.ServeHTTP(rec, r)
			if rec.statusCode == 0 {
				rec.statusCode = http.StatusOK
			}
			defer rec.flush()

			if rec.statusCode >= http.StatusInternalServerError {
				m.release(r, scope, key, fingerprint, audit)
				return
			}
			observability.RecordIdempotencyEvent(r.Context(), scope, "created")
			ctx, cancel := storeWriteContext(r)
			defer cancel()
			if err := m.store.Complete(ctx, scope, key, fingerprint, service.CachedHTTPResponse{
				StatusCode:  rec.statusCode,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}, m.ttl); err != nil {
				observability.RecordIdempotencyEvent(r.Context(), scope, "store_error")
				audit("idempotency.complete", "complete", "failure", "store_error", "error", err.Error())
			}
		})
	}
}

func (m *IdempotencyMiddleware) release(r *http.Request, scope, key, fingerprint string, audit func(event, action, outcome, reason string, extra ...any)) {
	observability.RecordIdempotencyEvent(r.Context(), scope, "released")
	ctx, cancel := storeWriteContext(r)
	defer cancel()
	if err := m.store.Release(ctx, scope, key, fingerprint); err != nil {
		observability.RecordIdempotencyEvent(r.Context(), scope, "store_error")
		audit("idempotency.release", "release", "failure", "store_error", "error", err.Error())
	}
}

// storeWriteContext ignores client cancellation and is bounded by
// storeWriteTimeout.
func storeWriteContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), storeWriteTimeout)
}

func writeStoredResponse(w http.ResponseWriter, stored *service.CachedHTTPResponse) {
	if stored == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(idempotencyReplayedHeader, "true")
	w.WriteHeader(stored.StatusCode)
	if len(stored.Body) > 0 {
		_, _ = w.Write(stored.Body)
	}
}

func fingerprintRequest(r *http.Request, scope string, body []byte) string {
	routePattern := r.URL.Path
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			routePattern = pattern
		}
	}
	raw := strings.Join([]string{
		scope,
		r.Method,
		routePattern,
		r.URL.Path,
		hex.EncodeToString(hashBytes(body)),
	}, "\n")
	return hex.EncodeToString(hashBytes([]byte(raw)))
}

func hashBytes(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

func shortHash(v string) string {
	return hex.EncodeToString(hashBytes([]byte(v)))[:12]
}

// captureWriter holds the handler's response until the outcome has been
// recorded in the store, so a client never sees a response whose key is
// still pending.
type captureWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func newCaptureWriter(w http.ResponseWriter) *captureWriter {
	return &captureWriter{ResponseWriter: w}
}

func (w *captureWriter) WriteHeader(statusCode int) {
	if w.statusCode == 0 {
		w.statusCode = statusCode
	}
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *captureWriter) flush() {
	w.ResponseWriter.WriteHeader(w.statusCode)
	_, _ = w.ResponseWriter.Write(w.body.Bytes())
}
