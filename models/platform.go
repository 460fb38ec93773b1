package models

import "time"

type Platform struct {
	ID           int       `gorm:"primary_key" json:"id"`
	OrderId      int       `gorm:"not null;index" json:"order_id"`
	Order        Order     `gorm:"foreignKey:OrderId;constraint:OnDelete:CASCADE" json:"-"`
	// Stored verbatim; the PlatformName constants cover the marketplaces we
	// integrate with, but new ones must not be rejected at ingest.
	PlatformName PlatformName `gorm:"size:100;index;not null" json:"platform_name"`
	SellerId     string    `gorm:"size:100" json:"seller_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
