package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"FanLedger/internal/observability"
)

// Output mirrors the data projections need from an applied operation. The
// orchestrator bridges between core.CoreOutput and this.
type Output struct {
	Sequence   int64
	OpType     string
	ActorID    string
	ResourceID string
	Journals   []JournalEntry
	Amounts    map[string]int64
	Timestamp  int64
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	TokenID       string
	Amount        int64
	JournalType   int32
}

// Worker updates projection tables from processed operations. The feed
// channel drops when full; falling behind is recovered by rebuilding from
// the event log, never by stalling the core.
type Worker struct {
	db        *sql.DB
	inputChan <-chan Output
	lastSeq   int64
	log       zerolog.Logger
}

func NewWorker(db *sql.DB, inputChan <-chan Output) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		log:       observability.NewLogger("projection"),
	}
}

// Run starts the projection worker loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			if err := w.processOutput(ctx, output); err != nil {
				// Projections are eventually consistent; keep going and
				// rebuild from the event log if the gap matters.
				w.log.Warn().Err(err).Int64("sequence", output.Sequence).Msg("projection update failed")
			}

			w.lastSeq = output.Sequence
		}
	}
}

func (w *Worker) processOutput(ctx context.Context, output Output) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.Journals {
		if err := w.updateBalanceProjection(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	switch output.OpType {
	case "BuyListing", "EndAuction":
		if err := w.insertTradeHistory(ctx, tx, output); err != nil {
			return fmt.Errorf("trade history: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// updateBalanceProjection applies one journal to the balances table. Signs
// follow the in-memory tracker: debit increases, credit decreases.
func (w *Worker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, token_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, token_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, j.DebitAccount, j.TokenID, j.Amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, token_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, token_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, j.CreditAccount, j.TokenID, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

func (w *Worker) insertTradeHistory(ctx context.Context, tx *sql.Tx, output Output) error {
	value := output.Amounts["value"]
	if value == 0 {
		value = output.Amounts["winning_bid"]
	}
	if value == 0 {
		// No-bid auction reclaim settles nothing.
		return nil
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.trade_history
			(sequence, op_type, resource_id, buyer_id, value, fee, payout, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, to_timestamp($8 / 1e6))
		ON CONFLICT (sequence) DO NOTHING
	`, output.Sequence, output.OpType, output.ResourceID, output.ActorID,
		value, output.Amounts["fee"], output.Amounts["payout"], output.Timestamp)
	return err
}

// Rebuild rebuilds all projection tables from the event log.
func Rebuild(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.trade_history`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Debit side adds, credit side subtracts.
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, token_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			token_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account, token_id
		ON CONFLICT (account_path, token_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, token_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			token_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account, token_id
		ON CONFLICT (account_path, token_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	return nil
}
