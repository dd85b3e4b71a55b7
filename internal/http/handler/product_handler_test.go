package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/mock/gomock"

	"github.com/sandeepkv93/product-catalog-api/internal/domain"
	"github.com/sandeepkv93/product-catalog-api/internal/http/middleware"
	"github.com/sandeepkv93/product-catalog-api/internal/http/response"
	"github.com/sandeepkv93/product-catalog-api/internal/repository"
	"github.com/sandeepkv93/product-catalog-api/internal/service"
	servicegomock "github.com/sandeepkv93/product-catalog-api/internal/service/gomock"
)

func newProductRouterForTest(t *testing.T) (http.Handler, *servicegomock.MockProductService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := servicegomock.NewMockProductService(ctrl)
	h := NewProductHandler(svc)

	r := chi.NewRouter()
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Group(func(r chi.Router) {
			r.Use(middleware.ValidatePathParams(middleware.PathParamRule{Name: "id", Kind: middleware.PositiveInt}))
			r.Get("/{id}", h.GetByID)
			r.Patch("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
	return r, svc
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeErrorEnvelope(t *testing.T, rr *httptest.ResponseRecorder) response.ErrorEnvelope {
	t.Helper()
	var env response.ErrorEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v body=%s", err, rr.Body.String())
	}
	return env
}

func sampleProduct(id uint) domain.Product {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return domain.Product{
		ID:          id,
		Title:       "X",
		Description: "Y",
		Category:    "z",
		IsAvailable: true,
		Image:       "http://i",
		Price:       10,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestProductHandlerList(t *testing.T) {
	h, svc := newProductRouterForTest(t)

	t.Run("wraps products with total", func(t *testing.T) {
		svc.EXPECT().List(gomock.Any()).Return([]domain.Product{sampleProduct(1), sampleProduct(2)}, nil)
		rr := doRequest(h, http.MethodGet, "/products", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
		}
		var got ProductListResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Total != 2 || len(got.Products) != 2 || got.Products[0].ID != 1 {
			t.Fatalf("unexpected list payload: %+v", got)
		}
	})

	t.Run("empty store renders an empty array", func(t *testing.T) {
		svc.EXPECT().List(gomock.Any()).Return([]domain.Product{}, nil)
		rr := doRequest(h, http.MethodGet, "/products", "")
		if !strings.Contains(rr.Body.String(), `"products":[]`) || !strings.Contains(rr.Body.String(), `"total":0`) {
			t.Fatalf("unexpected body: %s", rr.Body.String())
		}
	})

	t.Run("store error is a generic 500", func(t *testing.T) {
		svc.EXPECT().List(gomock.Any()).Return(nil, errors.New("connection reset by peer"))
		rr := doRequest(h, http.MethodGet, "/products", "")
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
		if strings.Contains(rr.Body.String(), "connection reset") {
			t.Fatalf("store error leaked to client: %s", rr.Body.String())
		}
	})
}

func TestProductHandlerGetByID(t *testing.T) {
	h, svc := newProductRouterForTest(t)

	svc.EXPECT().GetByID(gomock.Any(), uint(7)).Return(nil, repository.ErrProductNotFound)
	rr := doRequest(h, http.MethodGet, "/products/7", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if env := decodeErrorEnvelope(t, rr); env.Error.Code != "NOT_FOUND" || env.Error.Message != "product 7 not found" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	p := sampleProduct(3)
	svc.EXPECT().GetByID(gomock.Any(), uint(3)).Return(&p, nil)
	rr = doRequest(h, http.MethodGet, "/products/3", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"isAvailable":true`) {
		t.Fatalf("unexpected response: %d %s", rr.Code, rr.Body.String())
	}
}

func TestProductHandlerInvalidIDNeverReachesService(t *testing.T) {
	h, _ := newProductRouterForTest(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/products/abc"},
		{http.MethodPatch, "/products/0"},
		{http.MethodDelete, "/products/-1"},
	} {
		rr := doRequest(h, tc.method, tc.path, `{"price":1}`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d", tc.method, tc.path, rr.Code)
		}
	}
}

func TestProductHandlerCreate(t *testing.T) {
	h, svc := newProductRouterForTest(t)

	t.Run("created", func(t *testing.T) {
		svc.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, in service.CreateProductInput) (*domain.Product, error) {
				if in.Title != "X" || in.IsAvailable == nil || !*in.IsAvailable || in.Price == nil || *in.Price != 10 {
					t.Fatalf("unexpected input: %+v", in)
				}
				p := sampleProduct(11)
				return &p, nil
			},
		)
		rr := doRequest(h, http.MethodPost, "/products",
			`{"title":"X","description":"Y","category":"z","isAvailable":true,"image":"http://i","price":10}`)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
		}
		var got domain.Product
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ID != 11 || got.CreatedAt.IsZero() {
			t.Fatalf("expected generated id and timestamps, got %+v", got)
		}
	})

	t.Run("unknown field rejected before service", func(t *testing.T) {
		rr := doRequest(h, http.MethodPost, "/products", `{"id":99,"title":"X"}`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if env := decodeErrorEnvelope(t, rr); env.Error.Message != "id is not a writable field" {
			t.Fatalf("unexpected message: %+v", env.Error)
		}
	})

	t.Run("malformed and empty bodies", func(t *testing.T) {
		for _, body := range []string{`{"title":`, `[]`, `{"price":"ten"}`, `{} {}`} {
			rr := doRequest(h, http.MethodPost, "/products", body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("body %q: expected 400, got %d", body, rr.Code)
			}
		}
		req := httptest.NewRequest(http.MethodPost, "/products", http.NoBody)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("empty body: expected 400, got %d", rr.Code)
		}
	})

	t.Run("validation errors listed per field", func(t *testing.T) {
		svc.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, &service.ValidationError{
			Fields: []service.FieldError{{Field: "title", Message: "is required"}},
		})
		rr := doRequest(h, http.MethodPost, "/products", `{"description":"Y"}`)
		if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), `"field":"title"`) {
			t.Fatalf("unexpected response: %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("store failure", func(t *testing.T) {
		svc.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("create product: disk full"))
		rr := doRequest(h, http.MethodPost, "/products", `{"title":"X"}`)
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
		if env := decodeErrorEnvelope(t, rr); env.Error.Message != "failed to create product" {
			t.Fatalf("unexpected message: %+v", env.Error)
		}
	})
}

func TestProductHandlerUpdate(t *testing.T) {
	h, svc := newProductRouterForTest(t)

	t.Run("patched returns 201", func(t *testing.T) {
		svc.EXPECT().Update(gomock.Any(), uint(4), gomock.Any()).DoAndReturn(
			func(_ context.Context, _ uint, in service.UpdateProductInput) (*domain.Product, error) {
				if in.Price == nil || *in.Price != 12.5 || in.Title != nil {
					t.Fatalf("expected only price, got %+v", in)
				}
				p := sampleProduct(4)
				p.Price = 12.5
				return &p, nil
			},
		)
		rr := doRequest(h, http.MethodPatch, "/products/4", `{"price":12.5}`)
		if rr.Code != http.StatusCreated || !strings.Contains(rr.Body.String(), `"price":12.5`) {
			t.Fatalf("unexpected response: %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("read-only field rejected", func(t *testing.T) {
		rr := doRequest(h, http.MethodPatch, "/products/4", `{"createdAt":"2020-01-01T00:00:00Z"}`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("error mapping", func(t *testing.T) {
		cases := []struct {
			err  error
			code int
		}{
			{repository.ErrProductNotFound, http.StatusNotFound},
			{service.ErrProductNoUpdates, http.StatusBadRequest},
			{&service.ValidationError{Fields: []service.FieldError{{Field: "image", Message: "must be an absolute URL"}}}, http.StatusBadRequest},
			{errors.New("deadlock detected"), http.StatusInternalServerError},
		}
		for _, tc := range cases {
			svc.EXPECT().Update(gomock.Any(), uint(5), gomock.Any()).Return(nil, tc.err)
			rr := doRequest(h, http.MethodPatch, "/products/5", `{}`)
			if rr.Code != tc.code {
				t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rr.Code)
			}
		}
	})
}

func TestProductHandlerDelete(t *testing.T) {
	h, svc := newProductRouterForTest(t)

	svc.EXPECT().DeleteByID(gomock.Any(), uint(9)).Return(nil)
	rr := doRequest(h, http.MethodDelete, "/products/9", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got DeleteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Message != "The resource with id of 9 was successfully deleted from database." {
		t.Fatalf("unexpected message: %q", got.Message)
	}

	svc.EXPECT().DeleteByID(gomock.Any(), uint(9)).Return(repository.ErrProductNotFound)
	rr = doRequest(h, http.MethodDelete, "/products/9", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rr.Code)
	}
}

func TestProductHandlerWithoutPathFilterIsInternalError(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewProductHandler(servicegomock.NewMockProductService(ctrl))
	r := chi.NewRouter()
	r.Get("/products/{id}", h.GetByID)

	rr := doRequest(r, http.MethodGet, "/products/1", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestFallbackHandlers(t *testing.T) {
	rr := httptest.NewRecorder()
	NotFound(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), "Cannot GET /nope") {
		t.Fatalf("unexpected not found response: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	MethodNotAllowed(rr, httptest.NewRequest(http.MethodPut, "/products/1", nil))
	if rr.Code != http.StatusMethodNotAllowed || !strings.Contains(rr.Body.String(), "Cannot PUT /products/1") {
		t.Fatalf("unexpected method not allowed response: %d %s", rr.Code, rr.Body.String())
	}
}
