package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/sales_backend/utils"
	"gorm.io/gorm"
)

type Delivery struct {
	ID              int            `gorm:"primary_key" json:"id"`
	OrderId         int            `gorm:"not null;index" json:"order_id"`
	Order           Order          `gorm:"foreignKey:OrderId;constraint:OnDelete:CASCADE" json:"-"`
	DeliveryAddress string         `gorm:"type:text" json:"delivery_address"`
	DeliveryDate    *time.Time     `gorm:"type:date" json:"delivery_date"`
	DeliveryStatus  DeliveryStatus `gorm:"size:50;not null" json:"delivery_status"`
	// Derived from DeliveryAddress by the backfill pass; nil until backfilled.
	City      *string   `gorm:"size:100" json:"city"`
	State     *string   `gorm:"size:100;index" json:"state"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BackfillCityState re-derives city/state for deliveries that have not been
// parsed yet. Addresses that do not match the expected shape are left unset
// and reported in the skipped count; the fields stay recomputable from
// delivery_address at any time.
func BackfillCityState(ctx context.Context, db *gorm.DB) (updated int, skipped int, err error) {
	var deliveries []*Delivery
	result := db.WithContext(ctx).
		Where("city IS NULL OR state IS NULL").
		FindInBatches(&deliveries, 500, func(tx *gorm.DB, batch int) error {
			for _, delivery := range deliveries {
				city, state := utils.ParseCityState(delivery.DeliveryAddress)
				if city == "" || state == "" {
					skipped++
					continue
				}
				if uerr := tx.Model(&Delivery{}).
					Where("id = ?", delivery.ID).
					Updates(map[string]interface{}{"city": city, "state": state}).Error; uerr != nil {
					return uerr
				}
				updated++
			}
			return nil
		})
	if result.Error != nil {
		return updated, skipped, result.Error
	}
	return updated, skipped, nil
}
