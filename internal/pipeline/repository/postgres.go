package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation = "23505"

	constraintLeadPosition = "uq_pipeline_leads_position"
	constraintStageOrdinal = "uq_pipeline_stages_ordinal"
)

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// inTx runs fn in a read-committed transaction, rolling back on error.
// Deferred constraints are checked at commit, so commit errors are mapped too.
func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return mapPgError(tx.Commit(ctx))
}

// mapPgError translates constraint violations into repository sentinels.
// Positions are planned before the transaction takes its advisory locks, so a
// position violation here means another instance committed to the stage first.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case constraintLeadPosition:
			return fmt.Errorf("%w: %s", ErrPositionRace, pgErr.Detail)
		case constraintStageOrdinal:
			return fmt.Errorf("%w: %s", ErrOrdinalTaken, pgErr.Detail)
		}
	}
	return err
}

// lockStagesTx takes transaction-scoped advisory locks on the stages, in the
// order given. This backs up the application lock scope when several API
// instances run with the in-process locker.
func lockStagesTx(ctx context.Context, tx pgx.Tx, stageIDs ...uuid.UUID) error {
	for _, id := range stageIDs {
		if _, err := tx.Exec(ctx, advisoryLockQuery, id.String()); err != nil {
			return err
		}
	}
	return nil
}

var _ Store = (*Repository)(nil)
