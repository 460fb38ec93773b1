package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/sales_backend/utils"
	"gorm.io/gorm"
)

type Customer struct {
	ID           int       `gorm:"primary_key" json:"id"`
	CustomerId   string    `gorm:"size:100;uniqueIndex;not null" json:"customer_id"`
	CustomerName string    `gorm:"size:255;not null" json:"customer_name"`
	ContactEmail string    `gorm:"size:255;index" json:"contact_email"`
	PhoneNumber  string    `gorm:"size:20" json:"phone_number"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	CustomerId   string `json:"customer_id" binding:"required"`
	CustomerName string `json:"customer_name"`
	ContactEmail string `json:"contact_email"`
	PhoneNumber  string `json:"phone_number"`
}

// GetOrCreateCustomer resolves a customer by its external id.
// First write wins: when the id already exists the stored record is returned
// and the incoming fields are discarded. Phone numbers are normalized to E.164
// at first create only.
func GetOrCreateCustomer(ctx context.Context, tx *gorm.DB, input *NewCustomer) (*Customer, error) {
	var existing Customer
	err := tx.WithContext(ctx).Where("customer_id = ?", input.CustomerId).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	customer := Customer{
		CustomerId:   input.CustomerId,
		CustomerName: input.CustomerName,
		ContactEmail: input.ContactEmail,
		PhoneNumber:  utils.NormalizePhone(input.PhoneNumber),
	}
	if err := tx.WithContext(ctx).Create(&customer).Error; err != nil {
		// Lost a race on the unique index: reuse the winner's row.
		if isDuplicateKeyError(err) {
			if ferr := tx.WithContext(ctx).Where("customer_id = ?", input.CustomerId).First(&existing).Error; ferr == nil {
				return &existing, nil
			}
		}
		return nil, err
	}
	return &customer, nil
}

func ListCustomers(ctx context.Context, db *gorm.DB, page int, limit int) ([]*Customer, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}

	var total int64
	if err := db.WithContext(ctx).Model(&Customer{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var customers []*Customer
	if err := db.WithContext(ctx).
		Order("id").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&customers).Error; err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}
