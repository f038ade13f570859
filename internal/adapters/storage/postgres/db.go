package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	ErrNotFound = errors.New("not found")
)

// Open abre una conexión pool a Postgres usando pgx (database/sql).
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	// defaults razonables para MVP (ajustable luego)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// EnsureSchema crea las tablas del subsistema si no existen. Idempotente;
// se corre en el arranque.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activity_events (
			id          BIGSERIAL PRIMARY KEY,
			action      TEXT        NOT NULL,
			entity      TEXT        NOT NULL,
			entity_id   BIGINT,
			title       TEXT        NOT NULL DEFAULT '',
			description TEXT        NOT NULL DEFAULT '',
			severity    TEXT        NOT NULL DEFAULT 'info',
			actor_id    BIGINT,
			subject_id  BIGINT,
			relations   JSONB,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		// Soporta el ORDER BY (created_at DESC, id DESC) de la paginación keyset.
		`CREATE INDEX IF NOT EXISTS idx_activity_events_created
			ON activity_events (created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_events_entity
			ON activity_events (entity, action)`,
		`CREATE TABLE IF NOT EXISTS daily_activity (
			date       DATE   NOT NULL,
			actor_id   BIGINT NOT NULL DEFAULT 0,
			entity     TEXT   NOT NULL,
			action     TEXT   NOT NULL,
			severity   TEXT   NOT NULL,
			subject_id BIGINT NOT NULL DEFAULT 0,
			count      BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (date, actor_id, entity, action, severity, subject_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
