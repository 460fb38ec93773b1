package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ProductId   string          `gorm:"size:100;uniqueIndex;not null" json:"product_id"`
	ProductName string          `gorm:"size:255;not null" json:"product_name"`
	Category    string          `gorm:"size:100;index" json:"category"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	ProductId   string          `json:"product_id" binding:"required"`
	ProductName string          `json:"product_name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
}

// GetOrCreateProduct resolves a product by its external id.
// Same first-write-wins policy as customers: a repeated id reuses the stored
// record, including its price, even when the row carries a different one.
func GetOrCreateProduct(ctx context.Context, tx *gorm.DB, input *NewProduct) (*Product, error) {
	var existing Product
	err := tx.WithContext(ctx).Where("product_id = ?", input.ProductId).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	product := Product{
		ProductId:   input.ProductId,
		ProductName: input.ProductName,
		Category:    input.Category,
		Price:       input.Price,
	}
	if err := tx.WithContext(ctx).Create(&product).Error; err != nil {
		if isDuplicateKeyError(err) {
			if ferr := tx.WithContext(ctx).Where("product_id = ?", input.ProductId).First(&existing).Error; ferr == nil {
				return &existing, nil
			}
		}
		return nil, err
	}
	return &product, nil
}

func ListProducts(ctx context.Context, db *gorm.DB, page int, limit int) ([]*Product, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}

	var total int64
	if err := db.WithContext(ctx).Model(&Product{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []*Product
	if err := db.WithContext(ctx).
		Order("id").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}
