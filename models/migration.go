package models

import (
	"log"

	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) {
	err := db.AutoMigrate(
		&Customer{}, &Product{},
		&Order{}, &Delivery{}, &Platform{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
