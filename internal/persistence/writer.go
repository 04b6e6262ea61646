package persistence

import (
	"SynthLedger/internal/event"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ChangeRow represents a row in change_log.changes.
type ChangeRow struct {
	Sequence   int64
	ChangeType string
	Caller     string
	Payload    []byte // JSON-encoded event.Change
	StateHash  []byte
	PrevHash   []byte
	Timestamp  time.Time
}

// RowFromRecord converts an applied change record to its storage form.
func RowFromRecord(rec *event.Record) (ChangeRow, error) {
	payload, err := json.Marshal(rec.Change)
	if err != nil {
		return ChangeRow{}, fmt.Errorf("marshal change payload: %w", err)
	}
	return ChangeRow{
		Sequence:   rec.Sequence,
		ChangeType: rec.Change.Type.String(),
		Caller:     rec.Change.Caller,
		Payload:    payload,
		StateHash:  rec.StateHash[:],
		PrevHash:   rec.PrevHash[:],
		Timestamp:  rec.Timestamp,
	}, nil
}

// ChangeLogWriter appends change records to Postgres with multi-row
// INSERTs. Writes are idempotent on sequence, so a retried batch never
// double-applies.
type ChangeLogWriter struct {
	db *sql.DB
}

func NewChangeLogWriter(db *sql.DB) *ChangeLogWriter {
	return &ChangeLogWriter{db: db}
}

// WriteChangeBatch writes a batch of change rows inside tx.
func (w *ChangeLogWriter) WriteChangeBatch(ctx context.Context, tx *sql.Tx, rows []ChangeRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO change_log.changes
		(sequence, change_type, caller, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*7)

	for i, r := range rows {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			r.Sequence, r.ChangeType, r.Caller, r.Payload,
			r.StateHash, r.PrevHash, r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LoadChangesFrom reads change rows in sequence order, starting at
// fromSequence, up to limit rows. Used for startup replay.
func (w *ChangeLogWriter) LoadChangesFrom(ctx context.Context, fromSequence int64, limit int) ([]ChangeRow, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT sequence, change_type, caller, payload, state_hash, prev_hash, timestamp
		FROM change_log.changes
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChangeRow
	for rows.Next() {
		var r ChangeRow
		if err := rows.Scan(&r.Sequence, &r.ChangeType, &r.Caller, &r.Payload,
			&r.StateHash, &r.PrevHash, &r.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordFromRow parses a stored change row back into a replayable
// record.
func RecordFromRow(r ChangeRow) (*event.Record, error) {
	var ch event.Change
	if err := json.Unmarshal(r.Payload, &ch); err != nil {
		return nil, fmt.Errorf("unmarshal change payload seq=%d: %w", r.Sequence, err)
	}

	rec := &event.Record{
		Sequence:  r.Sequence,
		Change:    &ch,
		Timestamp: r.Timestamp,
	}
	copy(rec.StateHash[:], r.StateHash)
	copy(rec.PrevHash[:], r.PrevHash)
	return rec, nil
}
