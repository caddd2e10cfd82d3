package database

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "0",
			Migrate: func(txn *gorm.DB) error {
				return txn.AutoMigrate(&Prescription{})
			},
			Rollback: func(txn *gorm.DB) error {
				return txn.Migrator().DropTable(&Prescription{})
			},
		},
	})

	migrator.InitSchema(func(txn *gorm.DB) error {
		// Runs instead of the migration list on a database with no history.
		log.Info().Msg("clean database detected, running full schema initialization")
		return txn.AutoMigrate(&Prescription{})
	})

	return migrator
}
