package database

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sandeepkv93/product-catalog-api/internal/config"
	"github.com/sandeepkv93/product-catalog-api/internal/domain"
	"gorm.io/gorm"
)

func openSQLiteForTest(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Open(&config.Config{
		DBDriver:       config.DBDriverSQLite,
		DatabaseURL:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		DBMaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(&config.Config{DBDriver: "mysql", DatabaseURL: "x"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestPlanThenMigrate(t *testing.T) {
	ctx := context.Background()
	db := openSQLiteForTest(t)

	plans, err := Plan(ctx, db)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plans) != 1 || plans[0].Table != "products" || plans[0].Exists {
		t.Fatalf("unexpected plan before migrate: %+v", plans)
	}
	if len(plans[0].MissingColumns) == 0 {
		t.Fatal("expected missing columns before migrate")
	}
	if db.Migrator().HasTable(&domain.Product{}) {
		t.Fatal("plan must not create tables")
	}

	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	plans, err = Plan(ctx, db)
	if err != nil {
		t.Fatalf("plan after migrate: %v", err)
	}
	if !plans[0].Exists || len(plans[0].MissingColumns) != 0 {
		t.Fatalf("expected up-to-date plan, got %+v", plans[0])
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openSQLiteForTest(t)
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	first, err := Seed(ctx, db)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if first.Created != len(SampleProducts()) || first.Noop {
		t.Fatalf("unexpected first seed report: %+v", first)
	}

	second, err := Seed(ctx, db)
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if second.Created != 0 || second.Skipped != len(SampleProducts()) || !second.Noop {
		t.Fatalf("unexpected second seed report: %+v", second)
	}

	var count int64
	if err := db.Model(&domain.Product{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if int(count) != len(SampleProducts()) {
		t.Fatalf("expected %d rows, got %d", len(SampleProducts()), count)
	}
}

func TestSampleProductsAreValidCatalogueEntries(t *testing.T) {
	for _, p := range SampleProducts() {
		if p.Title == "" || p.Description == "" || p.Category == "" || !strings.HasPrefix(p.Image, "https://") || p.Price < 0 {
			t.Fatalf("invalid sample product: %+v", p)
		}
	}
}
