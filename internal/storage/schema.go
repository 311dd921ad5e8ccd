package storage

import "github.com/bloodmate/donor-service/internal/config"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS donors (
		id                 BIGSERIAL PRIMARY KEY,
		name               TEXT NOT NULL DEFAULT '',
		age                INTEGER,
		bloodgroup         TEXT NOT NULL DEFAULT '',
		city               TEXT NOT NULL DEFAULT '',
		firebase_uid       TEXT UNIQUE,
		status             TEXT NOT NULL DEFAULT 'Available',
		medical_report     TEXT,
		ocr_text           TEXT,
		eligible           BOOLEAN,
		eligibility_reason TEXT,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS donors_bloodgroup_city_idx ON donors (bloodgroup, city)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS donors (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		name               TEXT NOT NULL DEFAULT '',
		age                INTEGER,
		bloodgroup         TEXT NOT NULL DEFAULT '',
		city               TEXT NOT NULL DEFAULT '',
		firebase_uid       TEXT UNIQUE,
		status             TEXT NOT NULL DEFAULT 'Available',
		medical_report     TEXT,
		ocr_text           TEXT,
		eligible           BOOLEAN,
		eligibility_reason TEXT,
		created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS donors_bloodgroup_city_idx ON donors (bloodgroup, city)`,
}

func schemaFor(driver string) []string {
	if driver == config.DriverSQLite {
		return sqliteSchema
	}
	return postgresSchema
}
