package postgres

// changesChannel is the NOTIFY channel carrying change events for every collection
const changesChannel = "pingpong_changes"

// schema is applied idempotently on startup
var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS players_version_seq`,
	`CREATE SEQUENCE IF NOT EXISTS matches_version_seq`,
	`CREATE TABLE IF NOT EXISTS players (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		nickname   TEXT NOT NULL,
		wins       INTEGER NOT NULL DEFAULT 0,
		losses     INTEGER NOT NULL DEFAULT 0,
		version    BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS players_registration_idx ON players (lower(name), lower(nickname))`,
	`CREATE TABLE IF NOT EXISTS matches (
		id            TEXT PRIMARY KEY,
		player1_id    TEXT NOT NULL,
		player2_id    TEXT NOT NULL,
		player1_score INTEGER NOT NULL DEFAULT 0,
		player2_score INTEGER NOT NULL DEFAULT 0,
		status        TEXT NOT NULL CHECK (status IN ('upcoming', 'live', 'finished')),
		winner_id     TEXT,
		version       BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS admins (
		user_id TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}
