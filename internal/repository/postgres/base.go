package postgres

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jwalitptl/notification-dispatch/internal/repository"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewBaseRepository creates a new base repository. The placeholder style
// follows the driver the connection was opened with.
func NewBaseRepository(db *sqlx.DB) *BaseRepository {
	var format sq.PlaceholderFormat = sq.Question
	if db.DriverName() == DriverPostgres {
		format = sq.Dollar
	}
	return &BaseRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// get runs a single-row select built with squirrel.
func (r *BaseRepository) get(ctx context.Context, dest interface{}, query sq.Sqlizer, wrapMsg string) error {
	statement, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if err := r.db.GetContext(ctx, dest, statement, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return errors.Wrap(err, wrapMsg)
	}
	return nil
}

func (r *BaseRepository) selectAll(ctx context.Context, dest interface{}, query sq.Sqlizer, wrapMsg string) error {
	statement, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if err := r.db.SelectContext(ctx, dest, statement, args...); err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	return nil
}

// exec runs a statement and returns the number of affected rows.
func (r *BaseRepository) exec(ctx context.Context, query sq.Sqlizer, wrapMsg string) (int64, error) {
	statement, args, err := query.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	result, err := r.db.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	return rows, nil
}
