package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"

	id "ghostpass/pkg/domain"
	audit "ghostpass/pkg/platform/audit"
)

// Store implements audit.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an audit event. Re-appending the same event ID is a no-op so
// retried writes cannot duplicate a scan record.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, action, occurred_at, station_id, operator_id,
			from_station_id, to_station_id, token_nonce, decision, reason,
			request_id, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`

	eventID := event.ID
	if eventID == uuid.Nil {
		eventID = uuid.New()
	}
	var nonce *uuid.UUID
	if event.TokenNonce != nil {
		n := uuid.UUID(*event.TokenNonce)
		nonce = &n
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, query,
		eventID,
		string(event.Category),
		string(event.Action),
		event.Timestamp,
		event.StationID.String(),
		event.OperatorID.String(),
		nullString(event.FromStationID.String()),
		nullString(event.ToStationID.String()),
		nonce,
		event.Decision,
		event.Reason,
		event.RequestID,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByStation returns the most recent events for a station.
func (s *Store) ListByStation(ctx context.Context, station id.StationID, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > math.MaxInt32 {
		limit = math.MaxInt32
	}
	query := `
		SELECT id, category, action, occurred_at, station_id, operator_id,
			   COALESCE(from_station_id, ''), COALESCE(to_station_id, ''),
			   token_nonce, decision, reason, request_id, metadata
		FROM audit_events
		WHERE station_id = $1
		ORDER BY occurred_at DESC, seq DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, station.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *Store) CountByNonce(ctx context.Context, nonce id.Nonce) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_events WHERE token_nonce = $1`,
		uuid.UUID(nonce),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			event                  audit.Event
			category, action       string
			station, operator      string
			fromStation, toStation string
			nonce                  *uuid.UUID
			metadata               []byte
		)

		err := rows.Scan(
			&event.ID,
			&category,
			&action,
			&event.Timestamp,
			&station,
			&operator,
			&fromStation,
			&toStation,
			&nonce,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.Category(category)
		event.Action = audit.Action(action)
		event.StationID = id.StationID(station)
		event.OperatorID = id.OperatorID(operator)
		event.FromStationID = id.StationID(fromStation)
		event.ToStationID = id.StationID(toStation)
		if nonce != nil {
			n := id.Nonce(*nonce)
			event.TokenNonce = &n
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
