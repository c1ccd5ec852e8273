package repo

import (
	"holdem-service/internal/config"
	"holdem-service/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func InitDB(conf config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(conf.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Admin{},
		&model.User{},
		&model.Wallet{},
		&model.BillingLog{},
		&model.RakeRule{},
		&model.Table{},
		&model.Seat{},
		&model.Hand{},
	)
}
