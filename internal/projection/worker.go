package projection

import (
	"SynthLedger/internal/core"
	"SynthLedger/internal/event"
	"SynthLedger/internal/observability"
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// ProjectionWorker folds applied changes into queryable Postgres tables
// (balances, positions). It consumes the dropping projection channel, so
// it may miss changes under load — projections are eventually consistent
// and can be rebuilt from the change log at any time.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.Output
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewProjectionWorker(
	db *sql.DB,
	inputChan <-chan core.Output,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       log,
	}
}

// Run starts the projection loop. Blocks until ctx is cancelled or the
// input channel closes.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.apply(ctx, out.Record); err != nil {
				pw.log.Warn().
					Err(err).
					Int64("sequence", out.Record.Sequence).
					Msg("projection update failed")
				// Continue — projections can be rebuilt from the change log.
			}
		}
	}
}

func (pw *ProjectionWorker) apply(ctx context.Context, rec *event.Record) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	switch rec.Change.Type {
	case event.ChangeTypeMinted:
		if err := creditBalance(ctx, tx, rec.Change.Addr, rec.Change.Amount); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	case event.ChangeTypeBurned:
		if err := debitBalance(ctx, tx, rec.Change.Addr, rec.Change.Amount); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	case event.ChangeTypePositionSet:
		if err := upsertPosition(ctx, tx, rec.Change.Market, rec.Change.Position); err != nil {
			return fmt.Errorf("position projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (id, sequence, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET sequence = $1, updated_at = NOW()
	`, rec.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func creditBalance(ctx context.Context, tx *sql.Tx, addr, amount string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (address, balance, updated_at)
		VALUES ($1, $2::numeric, NOW())
		ON CONFLICT (address)
		DO UPDATE SET balance = projections.balances.balance + $2::numeric, updated_at = NOW()
	`, addr, amount)
	return err
}

func debitBalance(ctx context.Context, tx *sql.Tx, addr, amount string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (address, balance, updated_at)
		VALUES ($1, -$2::numeric, NOW())
		ON CONFLICT (address)
		DO UPDATE SET balance = projections.balances.balance - $2::numeric, updated_at = NOW()
	`, addr, amount)
	return err
}

func upsertPosition(ctx context.Context, tx *sql.Tx, market string, pos *event.PositionChange) error {
	if pos == nil {
		return fmt.Errorf("position change without record")
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.positions
			(holder, market, position_timestamp, long_shares, short_shares,
			 mean_entry_price, mean_entry_spread, mean_entry_leverage,
			 liquidation_price, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric,
			$8::numeric, $9::numeric, NOW())
		ON CONFLICT (holder, market) DO UPDATE SET
			position_timestamp  = $3,
			long_shares         = $4::numeric,
			short_shares        = $5::numeric,
			mean_entry_price    = $6::numeric,
			mean_entry_spread   = $7::numeric,
			mean_entry_leverage = $8::numeric,
			liquidation_price   = $9::numeric,
			updated_at          = NOW()
	`, pos.Holder, market, pos.Timestamp,
		pos.LongShares, pos.ShortShares,
		pos.MeanEntryPrice, pos.MeanEntrySpread, pos.MeanEntryLeverage,
		pos.LiquidationPrice)
	return err
}

// RebuildProjections recomputes the projection tables from the change
// log. Used after a restart that detected dropped projection updates.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	truncate := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.positions`,
		`DELETE FROM projections.watermark`,
	}
	for _, stmt := range truncate {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Net balances: mints credit, burns debit.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (address, balance, updated_at)
		SELECT
			payload->>'addr' AS address,
			SUM(CASE WHEN change_type = 'Minted'
				THEN (payload->>'amount')::numeric
				ELSE -(payload->>'amount')::numeric END) AS balance,
			NOW()
		FROM change_log.changes
		WHERE change_type IN ('Minted', 'Burned')
		GROUP BY payload->>'addr'
	`); err != nil {
		return fmt.Errorf("rebuild balances: %w", err)
	}

	// Latest position record per (holder, market).
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.positions
			(holder, market, position_timestamp, long_shares, short_shares,
			 mean_entry_price, mean_entry_spread, mean_entry_leverage,
			 liquidation_price, updated_at)
		SELECT DISTINCT ON (payload->'position'->>'holder', payload->>'market')
			payload->'position'->>'holder',
			payload->>'market',
			(payload->'position'->>'timestamp')::bigint,
			(payload->'position'->>'long_shares')::numeric,
			(payload->'position'->>'short_shares')::numeric,
			(payload->'position'->>'mean_entry_price')::numeric,
			(payload->'position'->>'mean_entry_spread')::numeric,
			(payload->'position'->>'mean_entry_leverage')::numeric,
			(payload->'position'->>'liquidation_price')::numeric,
			NOW()
		FROM change_log.changes
		WHERE change_type = 'PositionSet'
		ORDER BY payload->'position'->>'holder', payload->>'market', sequence DESC
	`); err != nil {
		return fmt.Errorf("rebuild positions: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (id, sequence, updated_at)
		SELECT 1, COALESCE(MAX(sequence), 0), NOW() FROM change_log.changes
	`); err != nil {
		return fmt.Errorf("rebuild watermark: %w", err)
	}

	return tx.Commit()
}
