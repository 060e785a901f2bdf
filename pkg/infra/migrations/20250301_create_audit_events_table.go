package migrations

import (
	"github.com/EdgeWard/WardGate/pkg/infra/database"
	"gorm.io/gorm"
)

func init() {
	database.RegisterMigration(database.Migration{
		ID:   "20250301_create_audit_events_table",
		Name: "Create ward_audit_events table for the guard audit trail",

		Up: func(db *gorm.DB) error {
			if err := db.Exec(`
				CREATE TABLE IF NOT EXISTS ward_audit_events (
					id         UUID PRIMARY KEY,
					action     TEXT NOT NULL,
					identity   TEXT NOT NULL,
					reason     TEXT,
					source     TEXT NOT NULL,
					signals    TEXT[],
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`).Error; err != nil {
				return err
			}

			// Admin listing reads newest-first
			if err := db.Exec(`
				CREATE INDEX IF NOT EXISTS idx_ward_audit_events_created_at
				ON ward_audit_events (created_at DESC);
			`).Error; err != nil {
				return err
			}

			if err := db.Exec(`
				CREATE INDEX IF NOT EXISTS idx_ward_audit_events_identity
				ON ward_audit_events (identity);
			`).Error; err != nil {
				return err
			}

			return nil
		},

		Down: func(db *gorm.DB) error {
			return db.Exec(`DROP TABLE IF EXISTS ward_audit_events;`).Error
		},
	})
}
