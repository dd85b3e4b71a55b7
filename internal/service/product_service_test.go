package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/product-catalog-api/internal/domain"
	"github.com/sandeepkv93/product-catalog-api/internal/repository"
	repogomock "github.com/sandeepkv93/product-catalog-api/internal/repository/gomock"
)

func newProductServiceForTest(t *testing.T) *ProductServiceImpl {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&domain.Product{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewProductService(repository.NewProductRepository(db))
}

func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func validCreateInput() CreateProductInput {
	return CreateProductInput{
		Title:       "X",
		Description: "Y",
		Category:    "z",
		IsAvailable: boolPtr(true),
		Image:       "http://i",
		Price:       floatPtr(10),
	}
}

func TestProductServiceCreateGetDelete(t *testing.T) {
	ctx := context.Background()
	svc := newProductServiceForTest(t)

	created, err := svc.Create(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 || created.CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamps, got %+v", created)
	}

	got, err := svc.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "X" || got.Description != "Y" || got.Category != "z" || !got.IsAvailable || got.Image != "http://i" || got.Price != 10 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if err := svc.DeleteByID(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetByID(ctx, created.ID); !errors.Is(err, repository.ErrProductNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := svc.DeleteByID(ctx, created.ID); !errors.Is(err, repository.ErrProductNotFound) {
		t.Fatalf("expected second delete to be not found, got %v", err)
	}
}

func TestProductServiceCreateAcceptsZeroValues(t *testing.T) {
	in := validCreateInput()
	in.IsAvailable = boolPtr(false)
	in.Price = floatPtr(0)

	p, err := newProductServiceForTest(t).Create(context.Background(), in)
	if err != nil {
		t.Fatalf("expected false/0 to be accepted, got %v", err)
	}
	if p.IsAvailable || p.Price != 0 {
		t.Fatalf("unexpected product: %+v", p)
	}
}

func TestProductServiceCreateValidation(t *testing.T) {
	svc := newProductServiceForTest(t)
	cases := []struct {
		name   string
		mutate func(*CreateProductInput)
		field  string
	}{
		{"missing title", func(in *CreateProductInput) { in.Title = "" }, "title"},
		{"blank title", func(in *CreateProductInput) { in.Title = "   " }, "title"},
		{"blank category", func(in *CreateProductInput) { in.Category = "\t\n" }, "category"},
		{"title too long", func(in *CreateProductInput) { in.Title = strings.Repeat("a", 201) }, "title"},
		{"missing availability", func(in *CreateProductInput) { in.IsAvailable = nil }, "isAvailable"},
		{"missing price", func(in *CreateProductInput) { in.Price = nil }, "price"},
		{"negative price", func(in *CreateProductInput) { in.Price = floatPtr(-1) }, "price"},
		{"relative image", func(in *CreateProductInput) { in.Image = "/img.png" }, "image"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validCreateInput()
			tc.mutate(&in)
			_, err := svc.Create(context.Background(), in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, f := range verr.Fields {
				if f.Field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected field %q in %+v", tc.field, verr.Fields)
			}
		})
	}
}

func TestProductServiceKeepsSurroundingWhitespace(t *testing.T) {
	ctx := context.Background()
	svc := newProductServiceForTest(t)
	in := validCreateInput()
	in.Title = " Apple iPhone 14 "
	in.Description = "Y\n"

	created, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != " Apple iPhone 14 " || got.Description != "Y\n" {
		t.Fatalf("expected stored values unchanged, got title=%q description=%q", got.Title, got.Description)
	}

	updated, err := svc.Update(ctx, created.ID, UpdateProductInput{Category: strPtr(" phones ")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Category != " phones " {
		t.Fatalf("expected category unchanged, got %q", updated.Category)
	}
}

func TestProductServiceUpdatePartial(t *testing.T) {
	ctx := context.Background()
	svc := newProductServiceForTest(t)
	created, err := svc.Create(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.Update(ctx, created.ID, UpdateProductInput{Price: floatPtr(12.5), IsAvailable: boolPtr(false)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Price != 12.5 || updated.IsAvailable {
		t.Fatalf("expected price and availability to change: %+v", updated)
	}
	if updated.Title != created.Title || updated.Image != created.Image {
		t.Fatalf("expected other fields untouched: %+v", updated)
	}
}

func TestProductServiceUpdateRejections(t *testing.T) {
	ctx := context.Background()
	svc := newProductServiceForTest(t)

	if _, err := svc.Update(ctx, 1, UpdateProductInput{}); !errors.Is(err, ErrProductNoUpdates) {
		t.Fatalf("expected ErrProductNoUpdates, got %v", err)
	}
	var verr *ValidationError
	if _, err := svc.Update(ctx, 1, UpdateProductInput{Title: strPtr("")}); !errors.As(err, &verr) {
		t.Fatalf("expected empty title to fail validation, got %v", err)
	}
	if _, err := svc.Update(ctx, 1, UpdateProductInput{Description: strPtr("  ")}); !errors.As(err, &verr) || verr.Fields[0].Message != "must not be blank" {
		t.Fatalf("expected blank description to fail validation, got %v", err)
	}
	if _, err := svc.Update(ctx, 404, UpdateProductInput{Title: strPtr("new")}); !errors.Is(err, repository.ErrProductNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProductServiceListOrdersByID(t *testing.T) {
	ctx := context.Background()
	svc := newProductServiceForTest(t)
	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, validCreateInput()); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	products, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(products) != 3 || products[0].ID > products[2].ID {
		t.Fatalf("unexpected list: %+v", products)
	}
}

func TestProductServicePropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repo := repogomock.NewMockProductRepository(ctrl)
	svc := NewProductService(repo)
	boom := errors.New("connection reset")

	repo.EXPECT().List(gomock.Any()).Return(nil, boom)
	if _, err := svc.List(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected store error from list, got %v", err)
	}

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(boom)
	if _, err := svc.Create(ctx, validCreateInput()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error from create, got %v", err)
	}

	repo.EXPECT().Update(gomock.Any(), uint(3), map[string]any{"category": "tablets"}).Return(nil)
	repo.EXPECT().FindByID(gomock.Any(), uint(3)).Return(nil, boom)
	if _, err := svc.Update(ctx, 3, UpdateProductInput{Category: strPtr(" tablets ")}); !errors.Is(err, boom) {
		t.Fatalf("expected store error from reload, got %v", err)
	}
}

func TestProductServiceValidationSkipsStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := repogomock.NewMockProductRepository(ctrl)
	svc := NewProductService(repo)

	in := validCreateInput()
	in.Title = ""
	if _, err := svc.Create(context.Background(), in); err == nil {
		t.Fatal("expected validation error")
	}
}
