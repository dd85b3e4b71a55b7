package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	_ "github.com/sandeepkv93/product-catalog-api/internal/docs"
	"github.com/sandeepkv93/product-catalog-api/internal/health"
	"github.com/sandeepkv93/product-catalog-api/internal/http/handler"
	"github.com/sandeepkv93/product-catalog-api/internal/http/middleware"
	"github.com/sandeepkv93/product-catalog-api/internal/http/response"
)

const (
	docsPrefix            = "/docs"
	defaultBodyLimitBytes = 1 << 20
	productCreateScope    = "products.create"
	jsonContentType       = "application/json"
)

type Dependencies struct {
	ProductHandler *handler.ProductHandler
	CORSOrigins    []string
	BodyLimitBytes int64
	DocsEnabled    bool
	Idempotency    IdempotencyMiddlewareFactory
	Readiness      *health.ProbeRunner
	EnableOTelHTTP bool
}

type IdempotencyMiddlewareFactory func(scope string) func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	bodyLimit := dep.BodyLimitBytes
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyLimitBytes
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders(docsPrefix))
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(bodyLimit))
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	if dep.DocsEnabled {
		r.Get(docsPrefix, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, docsPrefix+"/index.html", http.StatusMovedPermanently)
		})
		r.Get(docsPrefix+"/*", httpSwagger.Handler(httpSwagger.URL(docsPrefix+"/doc.json")))
	}

	products := dep.ProductHandler
	requireJSON := chimiddleware.AllowContentType(jsonContentType)
	r.Route("/products", func(r chi.Router) {
		r.Get("/", products.List)
		createChain := []func(http.Handler) http.Handler{requireJSON}
		if dep.Idempotency != nil {
			createChain = append(createChain, dep.Idempotency(productCreateScope))
		}
		r.With(createChain...).Post("/", products.Create)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ValidatePathParams(middleware.PathParamRule{Name: "id", Kind: middleware.PositiveInt}))
			r.Get("/{id}", products.GetByID)
			r.With(requireJSON).Patch("/{id}", products.Update)
			r.Delete("/{id}", products.Delete)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
