package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/product-catalog-api/internal/domain"
	"github.com/sandeepkv93/product-catalog-api/internal/observability"
)

func models() []any {
	return []any{&domain.Product{}}
}

func Migrate(ctx context.Context, db *gorm.DB) error {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "migrate", time.Since(start))
	}()
	if err := db.WithContext(ctx).AutoMigrate(models()...); err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "migrate", "error")
		return err
	}
	observability.RecordDatabaseStartupEvent(ctx, "migrate", "success")
	return nil
}

type TablePlan struct {
	Table          string   `json:"table"`
	Exists         bool     `json:"exists"`
	MissingColumns []string `json:"missing_columns,omitempty"`
}

// Plan reports what Migrate would change without writing anything.
func Plan(ctx context.Context, db *gorm.DB) ([]TablePlan, error) {
	migrator := db.WithContext(ctx).Migrator()
	plans := make([]TablePlan, 0, len(models()))
	for _, m := range models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return nil, err
		}
		plan := TablePlan{Table: stmt.Schema.Table, Exists: migrator.HasTable(m)}
		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" {
				continue
			}
			if !plan.Exists || !migrator.HasColumn(m, field.DBName) {
				plan.MissingColumns = append(plan.MissingColumns, field.DBName)
			}
		}
		plans = append(plans, plan)
	}
	return plans, nil
}
