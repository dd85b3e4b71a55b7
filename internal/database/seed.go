package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/product-catalog-api/internal/domain"
	"github.com/sandeepkv93/product-catalog-api/internal/observability"
)

type SeedReport struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Titles  []string `json:"titles"`
	Noop    bool     `json:"noop"`
}

// SampleProducts is the demo catalogue inserted by Seed.
func SampleProducts() []domain.Product {
	return []domain.Product{
		{
			Title:       "Apple Iphone 14",
			Description: "Scopri iPhone 14 e il grandissimo iPhone 14 Plus. Con Rilevamento incidenti, durata della batteria mai vista, fotografia notturna ancora più spettacolare. E cinque colori favolosi.",
			Category:    "smartphone",
			IsAvailable: true,
			Image:       "https://www.apple.com/newsroom/images/product/iphone/geo/Apple-iPhone-14-iPhone-14-Plus-hero-220907-geo_Full-Bleed-Image.jpg.large.jpg",
			Price:       999.9,
		},
		{
			Title:       "Samsung Galaxy S21",
			Description: "The Samsung Galaxy S21 is a powerful smartphone with a sleek design and advanced features.",
			Category:    "smartphone",
			IsAvailable: true,
			Image:       "https://www.samsung.com/global/galaxy/galaxy-s21/images/galaxy-s21-5g_front_black.png",
			Price:       899.99,
		},
		{
			Title:       "Google Pixel 7",
			Description: "Google Tensor G2 phone with a 50 MP camera and all-day battery.",
			Category:    "smartphone",
			IsAvailable: false,
			Image:       "https://store.google.com/product/images/pixel_7.png",
			Price:       649,
		},
		{
			Title:       "Sony WH-1000XM5",
			Description: "Wireless noise cancelling headphones with 30 hours of battery life.",
			Category:    "audio",
			IsAvailable: true,
			Image:       "https://www.sony.com/image/wh-1000xm5.png",
			Price:       399.99,
		},
	}
}

// Seed inserts every sample product whose title is not already stored.
func Seed(ctx context.Context, db *gorm.DB) (*SeedReport, error) {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "seed", time.Since(start))
	}()

	report := &SeedReport{}
	for _, p := range SampleProducts() {
		res := db.WithContext(ctx).Where("title = ?", p.Title).FirstOrCreate(&p)
		if res.Error != nil {
			observability.RecordDatabaseStartupEvent(ctx, "seed", "error")
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			report.Created++
			report.Titles = append(report.Titles, p.Title)
		} else {
			report.Skipped++
		}
	}
	report.Noop = report.Created == 0
	observability.RecordDatabaseStartupEvent(ctx, "seed", "success")
	return report, nil
}
