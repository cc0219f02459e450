package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"ghostpass/internal/shift/models"
	id "ghostpass/pkg/domain"
	"ghostpass/pkg/platform/sentinel"
)

// uniqueViolation is raised by the one-active-shift-per-station index.
const uniqueViolation = "23505"

// PostgresStore persists shifts in PostgreSQL. The shifts table carries a
// partial unique index on station_id WHERE ended_at IS NULL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Active(ctx context.Context, station id.StationID) (*models.Shift, error) {
	query := `
		SELECT id, station_id, operator_id, started_at
		FROM shifts
		WHERE station_id = $1 AND ended_at IS NULL
	`
	var (
		sh      models.Shift
		shiftID uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, string(station)).Scan(&shiftID, &sh.StationID, &sh.OperatorID, &sh.StartedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, errors.Join(sentinel.ErrUnavailable, fmt.Errorf("get active shift: %w", err))
	}
	sh.ID = id.ShiftID(shiftID)
	return &sh, nil
}

// Apply runs the transition in one transaction.
func (s *PostgresStore) Apply(ctx context.Context, t models.Transition) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Join(sentinel.ErrUnavailable, fmt.Errorf("begin shift transition: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, e := range t.End {
		res, execErr := tx.ExecContext(ctx, `
			UPDATE shifts SET ended_at = $1
			WHERE id = $2 AND station_id = $3 AND ended_at IS NULL
		`, e.EndedAt, uuid.UUID(e.ShiftID), string(e.StationID))
		if execErr != nil {
			return errors.Join(sentinel.ErrUnavailable, fmt.Errorf("end shift: %w", execErr))
		}
		n, rowsErr := res.RowsAffected()
		if rowsErr != nil {
			return errors.Join(sentinel.ErrUnavailable, fmt.Errorf("end shift: %w", rowsErr))
		}
		if n != 1 {
			return sentinel.ErrConflict
		}
	}

	if t.Start != nil {
		_, execErr := tx.ExecContext(ctx, `
			INSERT INTO shifts (id, station_id, operator_id, started_at)
			VALUES ($1, $2, $3, $4)
		`, uuid.UUID(t.Start.ID), string(t.Start.StationID), string(t.Start.OperatorID), t.Start.StartedAt)
		if execErr != nil {
			var pgErr *pgconn.PgError
			if errors.As(execErr, &pgErr) && pgErr.Code == uniqueViolation {
				return sentinel.ErrConflict
			}
			return errors.Join(sentinel.ErrUnavailable, fmt.Errorf("start shift: %w", execErr))
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Join(sentinel.ErrUnavailable, fmt.Errorf("commit shift transition: %w", err))
	}
	return nil
}
