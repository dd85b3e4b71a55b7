package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/product-catalog-api/internal/http/response"
	"github.com/sandeepkv93/product-catalog-api/internal/observability"
)

type ParamKind int

const (
	PositiveInt ParamKind = iota + 1
)

// PathParamRule declares how one chi URL parameter must look.
type PathParamRule struct {
	Name string
	Kind ParamKind
}

type pathParamsKey struct{}

// ValidatePathParams rejects the request with 400 when a declared parameter
// does not satisfy its rule. Accepted values are parsed once and stored in
// the request context for PathUint. It must run after chi has matched the
// route, e.g. via r.With(...).
func ValidatePathParams(rules ...PathParamRule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parsed := make(map[string]uint, len(rules))
			for _, rule := range rules {
				raw := chi.URLParam(r, rule.Name)
				switch rule.Kind {
				case PositiveInt:
					n, err := strconv.ParseUint(raw, 10, 63)
					if err != nil || n == 0 {
						observability.RecordMiddlewareValidationEvent(r.Context(), "path_param", "rejected")
						response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", rule.Name+" must be a positive integer", map[string]string{rule.Name: raw})
						return
					}
					parsed[rule.Name] = uint(n)
				}
			}
			observability.RecordMiddlewareValidationEvent(r.Context(), "path_param", "accepted")
			ctx := context.WithValue(r.Context(), pathParamsKey{}, parsed)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func PathUint(ctx context.Context, name string) (uint, bool) {
	parsed, ok := ctx.Value(pathParamsKey{}).(map[string]uint)
	if !ok {
		return 0, false
	}
	v, ok := parsed[name]
	return v, ok
}
