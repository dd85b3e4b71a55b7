package domain

import "time"

type Product struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Description string    `gorm:"size:2000;not null" json:"description"`
	Category    string    `gorm:"size:100;not null;index:idx_products_category" json:"category"`
	IsAvailable bool      `gorm:"not null" json:"isAvailable"`
	Image       string    `gorm:"size:1024;not null" json:"image"`
	Price       float64   `gorm:"not null" json:"price"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Product) TableName() string { return "products" }
