package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockKey serialises migrators across replicas starting together.
const migrationLockKey int64 = 0x61636876

// Migration is one versioned schema step and, from Status, its applied state.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// GetMigrations returns the schema steps in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_achievements", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_attachments", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_review_decisions", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "add_achievement_version", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// Migrator applies GetMigrations while holding a session advisory lock.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over conn.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

// Migrate applies every pending step, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	return m.locked(ctx, func(c *pgxpool.Conn, applied map[int]time.Time) error {
		for _, mig := range m.migrations {
			if _, ok := applied[mig.Version]; ok {
				continue
			}
			err := withTx(ctx, c, readWrite, func(tx pgx.Tx) error {
				if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
					return err
				}
				_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
				return err
			})
			if err != nil {
				return fmt.Errorf("postgres: migration %03d_%s: %w", mig.Version, mig.Name, err)
			}
		}
		return nil
	})
}

// Rollback reverts the highest applied step. It is a no-op on an empty schema.
func (m *Migrator) Rollback(ctx context.Context) error {
	return m.locked(ctx, func(c *pgxpool.Conn, applied map[int]time.Time) error {
		for i := len(m.migrations) - 1; i >= 0; i-- {
			mig := m.migrations[i]
			if _, ok := applied[mig.Version]; !ok {
				continue
			}
			err := withTx(ctx, c, readWrite, func(tx pgx.Tx) error {
				if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
					return err
				}
				_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, mig.Version)
				return err
			})
			if err != nil {
				return fmt.Errorf("postgres: rollback %03d_%s: %w", mig.Version, mig.Name, err)
			}
			return nil
		}
		return nil
	})
}

// Status lists every step with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	out := make([]Migration, len(m.migrations))
	err := m.locked(ctx, func(_ *pgxpool.Conn, applied map[int]time.Time) error {
		copy(out, m.migrations)
		for i := range out {
			out[i].AppliedAt, out[i].IsApplied = applied[out[i].Version]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// locked pins one pooled connection, takes the advisory lock on it and
// hands fn the versions already applied.
func (m *Migrator) locked(ctx context.Context, fn func(*pgxpool.Conn, map[int]time.Time) error) error {
	if m.conn.closed.Load() {
		return ErrConnectionClosed
	}
	c, err := m.conn.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("postgres: acquire migration connection: %w", err)
	}
	defer c.Release()

	if _, err := c.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("postgres: take migration lock: %w", err)
	}
	defer func() {
		_, _ = c.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
	}()

	if _, err := c.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("postgres: ensure schema_migrations: %w", err)
	}

	rows, err := c.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("postgres: read schema_migrations: %w", err)
	}
	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			v  int
			at time.Time
		)
		if err := rows.Scan(&v, &at); err != nil {
			rows.Close()
			return err
		}
		applied[v] = at
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	return fn(c, applied)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS achievements (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    type VARCHAR(20) NOT NULL,
    status VARCHAR(20) NOT NULL,
    score INTEGER,
    reviewer_id TEXT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
    submitted_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_status CHECK (status IN ('Draft', 'Pending', 'Approved', 'Rejected')),
    CONSTRAINT valid_type CHECK (type IN ('project', 'paper', 'software', 'competition', 'certification', 'other')),
    CONSTRAINT valid_score CHECK (score IS NULL OR (score >= 0 AND score <= 100)),
    CONSTRAINT score_only_when_approved CHECK (score IS NULL OR status = 'Approved'),
    CONSTRAINT reviewer_iff_decided CHECK ((status IN ('Approved', 'Rejected')) = (reviewer_id IS NOT NULL)),
    CONSTRAINT pending_has_submission CHECK (status <> 'Pending' OR submitted_at IS NOT NULL)
);

-- Pending queue: oldest submission first
CREATE INDEX IF NOT EXISTS idx_achievements_pending ON achievements(submitted_at, id) WHERE status = 'Pending';
CREATE INDEX IF NOT EXISTS idx_achievements_owner ON achievements(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_achievements_status ON achievements(status);
`

const migration001Down = `
DROP TABLE IF EXISTS achievements;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ATTACHMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS attachments (
    id TEXT PRIMARY KEY,
    achievement_id TEXT NOT NULL REFERENCES achievements(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    url TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    size BIGINT NOT NULL DEFAULT 0,

    CONSTRAINT valid_size CHECK (size >= 0)
);

CREATE INDEX IF NOT EXISTS idx_attachments_achievement ON attachments(achievement_id, position);
`

const migration002Down = `
DROP TABLE IF EXISTS attachments;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE REVIEW DECISIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Append-only review ledger. seq orders decisions; the highest is authoritative.
CREATE TABLE IF NOT EXISTS review_decisions (
    seq BIGSERIAL UNIQUE,
    id TEXT PRIMARY KEY,
    achievement_id TEXT NOT NULL REFERENCES achievements(id) ON DELETE CASCADE,
    reviewer_id TEXT NOT NULL,
    outcome VARCHAR(20) NOT NULL,
    feedback TEXT NOT NULL DEFAULT '',
    score INTEGER,
    synthetic BOOLEAN NOT NULL DEFAULT FALSE,
    decided_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_outcome CHECK (outcome IN ('Approved', 'Rejected')),
    CONSTRAINT rejection_has_feedback CHECK (outcome <> 'Rejected' OR feedback <> '')
);

CREATE INDEX IF NOT EXISTS idx_review_decisions_achievement ON review_decisions(achievement_id, seq DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS review_decisions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: ACHIEVEMENT VERSION
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Write counter for compare-and-set; bumped by every update.
ALTER TABLE achievements ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 1;
ALTER TABLE achievements ADD CONSTRAINT valid_version CHECK (version >= 1);
`

const migration004Down = `
ALTER TABLE achievements DROP COLUMN IF EXISTS version;
`
