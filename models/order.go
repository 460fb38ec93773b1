package models

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const DefaultPageSize = 10

// ErrDuplicateOrder signals that an order with the same external id already
// exists. Re-ingestion tooling is expected to treat this as a per-row skip.
var ErrDuplicateOrder = errors.New("order id already exists")

type Order struct {
	ID             int             `gorm:"primary_key" json:"id"`
	OrderId        string          `gorm:"size:100;uniqueIndex;not null" json:"order_id"`
	CustomerId     int             `gorm:"not null;index" json:"customer_id"`
	Customer       Customer        `gorm:"foreignKey:CustomerId;constraint:OnDelete:CASCADE" json:"customer"`
	ProductId      int             `gorm:"not null;index" json:"product_id"`
	Product        Product         `gorm:"foreignKey:ProductId;constraint:OnDelete:CASCADE" json:"product"`
	QuantitySold   int             `gorm:"not null;index:idx_orders_sale_date_qty,priority:2" json:"quantity_sold"`
	TotalSaleValue decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_sale_value"`
	DateOfSale     time.Time       `gorm:"type:date;not null;index;index:idx_orders_sale_date_qty,priority:1" json:"date_of_sale"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreateOrder inserts a new order. Orders are strictly created, never
// upserted: a repeated OrderId is a constraint violation surfaced as
// ErrDuplicateOrder, with the unique index as the arbiter under concurrency.
func CreateOrder(ctx context.Context, tx *gorm.DB, order *Order) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&Order{}).
		Where("order_id = ?", order.OrderId).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateOrder
	}

	if err := tx.WithContext(ctx).Create(order).Error; err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateOrder
		}
		return err
	}
	return nil
}

// MySQL 1062, either raw from the driver or translated by gorm.
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
