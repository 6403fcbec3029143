package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// migration holds a single schema migration with its target version and SQL.
// {{uuid}} and {{timestamp}} are replaced with the driver's column types.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS notifications (
	id              {{uuid}} PRIMARY KEY,
	user_id         {{uuid}} NOT NULL,
	category        TEXT NOT NULL,
	title           TEXT NOT NULL,
	message         TEXT NOT NULL DEFAULT '',
	link            TEXT NOT NULL DEFAULT '',
	idempotency_key TEXT NOT NULL,
	created_at      {{timestamp}} NOT NULL,
	read_at         {{timestamp}}
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_idempotency_key
	ON notifications(idempotency_key);
CREATE INDEX IF NOT EXISTS idx_notifications_user_created
	ON notifications(user_id, created_at);

CREATE TABLE IF NOT EXISTS push_subscriptions (
	id              {{uuid}} PRIMARY KEY,
	user_id         {{uuid}} NOT NULL,
	endpoint        TEXT NOT NULL,
	p256dh          TEXT NOT NULL DEFAULT '',
	auth            TEXT NOT NULL DEFAULT '',
	expiration_time {{timestamp}},
	created_at      {{timestamp}} NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_push_subscriptions_endpoint
	ON push_subscriptions(endpoint);
CREATE INDEX IF NOT EXISTS idx_push_subscriptions_user
	ON push_subscriptions(user_id);

CREATE TABLE IF NOT EXISTS notification_preferences (
	user_id              {{uuid}} PRIMARY KEY,
	push_enabled         BOOLEAN NOT NULL DEFAULT FALSE,
	sms_enabled          BOOLEAN NOT NULL DEFAULT FALSE,
	email_enabled        BOOLEAN NOT NULL DEFAULT FALSE,
	category_preferences TEXT NOT NULL DEFAULT '{}',
	created_at           {{timestamp}} NOT NULL,
	updated_at           {{timestamp}} NOT NULL
);
`,
	},
}

func columnTypes(driver string) *strings.Replacer {
	if driver == DriverPostgres {
		return strings.NewReplacer("{{uuid}}", "UUID", "{{timestamp}}", "TIMESTAMPTZ")
	}
	return strings.NewReplacer("{{uuid}}", "TEXT", "{{timestamp}}", "TIMESTAMP")
}

// Migrate applies outstanding migrations in order, each in its own
// transaction. Only the tables this service owns are managed here; task,
// case and calendar tables belong to the business layer.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)",
	); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	if err := db.GetContext(ctx, &current,
		"SELECT COALESCE(MAX(version), 0) FROM schema_version",
	); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	types := columnTypes(db.DriverName())
	base := NewBaseRepository(db)
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := base.WithTx(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, types.Replace(m.sql)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO schema_version (version) VALUES (?)"), m.version)
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}
