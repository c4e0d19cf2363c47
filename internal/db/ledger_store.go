// Package db implements the durable ledger over sqlite: message log,
// instrument items, per-recipient response rows, and iteration rows.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/soaringjerry/Procus/internal/models"
	"github.com/soaringjerry/Procus/internal/services"
)

// Open opens (creating if needed) the sqlite database at path.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000&_loc=UTC", filepath.ToSlash(path))
	return sql.Open("sqlite3", dsn)
}

// LedgerStore is the sqlite-backed services.Ledger.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) (*LedgerStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &LedgerStore{db: db}, nil
}

var _ services.Ledger = (*LedgerStore)(nil)

// Transact runs fn inside one transaction, rolling back on error.
func (s *LedgerStore) Transact(ctx context.Context, fn func(tx services.LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&ledgerTx{ctx: ctx, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// AwaitingResponses snapshots the awaiting rows for the index rebuild.
func (s *LedgerStore) AwaitingResponses(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone_number, response_id FROM responses WHERE status = 'awaiting'`)
	if err != nil {
		return nil, fmt.Errorf("query awaiting responses: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var phone string
		var id int64
		if err := rows.Scan(&phone, &id); err != nil {
			return nil, fmt.Errorf("scan awaiting response: %w", err)
		}
		out[phone] = id
	}
	return out, rows.Err()
}

// MessageLog returns the audit trail for one phone number, oldest first.
func (s *LedgerStore) MessageLog(ctx context.Context, phone string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, sent_datetime, phone_number, message_body, direction, gateway_ref
		 FROM messages WHERE phone_number = ? ORDER BY message_id ASC`, phone)
	if err != nil {
		return nil, fmt.Errorf("query message log: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var (
			m         models.Message
			direction string
			ref       sql.NullString
		)
		if err := rows.Scan(&m.MessageID, &m.SentAt, &m.PhoneNumber, &m.Body, &direction, &ref); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Direction = models.MessageDirection(direction)
		m.GatewayRef = ref.String
		out = append(out, &m)
	}
	return out, rows.Err()
}

type ledgerTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *ledgerTx) RecordMessage(phone, body string, direction models.MessageDirection, ref string) error {
	var gatewayRef sql.NullString
	if ref != "" {
		gatewayRef = sql.NullString{String: ref, Valid: true}
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO messages (sent_datetime, phone_number, message_body, direction, gateway_ref)
		 VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC(), phone, body, string(direction), gatewayRef)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

func (t *ledgerTx) SeenInboundRef(phone, ref string) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT COUNT(message_id) FROM messages
		 WHERE phone_number = ? AND gateway_ref = ? AND direction = 'inbound'`,
		phone, ref).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check inbound ref: %w", err)
	}
	return n > 0, nil
}

func (t *ledgerTx) CountAwaiting(phone string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT COUNT(response_id) FROM responses WHERE phone_number = ? AND status = 'awaiting'`,
		phone).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count awaiting: %w", err)
	}
	return n, nil
}

func (t *ledgerTx) AwaitingResponse(phone string) (*models.Response, error) {
	return t.queryResponse(
		`WHERE phone_number = ? AND status = 'awaiting' ORDER BY response_id ASC LIMIT 1`, phone)
}

func (t *ledgerTx) NextOpenResponse(phone string) (*models.Response, error) {
	return t.queryResponse(
		`WHERE phone_number = ? AND status = 'open' ORDER BY response_id ASC LIMIT 1`, phone)
}

func (t *ledgerTx) queryResponse(where string, args ...any) (*models.Response, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT response_id, iteration_id, phone_number, item_id, item_text,
		        opens_datetime, response, status, created_datetime, updated_by
		 FROM responses `+where, args...)

	var (
		r      models.Response
		itemID sql.NullInt64
		answer sql.NullInt64
		status string
	)
	err := row.Scan(&r.ResponseID, &r.IterationID, &r.PhoneNumber, &itemID, &r.ItemText,
		&r.OpensAt, &answer, &status, &r.CreatedAt, &r.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan response: %w", err)
	}
	if itemID.Valid {
		r.ItemID = &itemID.Int64
	}
	if answer.Valid {
		a := int(answer.Int64)
		r.Answer = &a
	}
	r.Status = models.ResponseStatus(status)
	return &r, nil
}

// CloseResponse guards on (id, phone, status) so only one concurrent close
// can win; the caller treats zero affected rows as a benign no-op.
func (t *ledgerTx) CloseResponse(responseID int64, phone string, answer int, actor string) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE responses SET response = ?, status = 'closed', updated_by = ?
		 WHERE response_id = ? AND phone_number = ? AND status = 'awaiting'`,
		answer, actor, responseID, phone)
	if err != nil {
		return false, fmt.Errorf("close response: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close response rows affected: %w", err)
	}
	return n > 0, nil
}

func (t *ledgerTx) MarkAwaiting(responseID int64, actor string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE responses SET status = 'awaiting', updated_by = ? WHERE response_id = ?`,
		actor, responseID)
	if err != nil {
		return fmt.Errorf("mark awaiting: %w", err)
	}
	return nil
}

func (t *ledgerTx) SetIterationsOpen(phone string, open bool, actor string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE iterations SET is_open = ?, updated_by = ? WHERE phone_number = ?`,
		boolToInt(open), actor, phone)
	if err != nil {
		return fmt.Errorf("set iterations open: %w", err)
	}
	return nil
}

func (t *ledgerTx) ResetResponses(phone string, actor string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE responses SET status = 'open', response = NULL, updated_by = ?
		 WHERE phone_number = ?`,
		actor, phone)
	if err != nil {
		return fmt.Errorf("reset responses: %w", err)
	}
	return nil
}

func (t *ledgerTx) LatestIterationMessage(phone string) (string, bool, error) {
	var body string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT message_body FROM iterations
		 WHERE phone_number = ? ORDER BY iteration_id DESC LIMIT 1`,
		phone).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("latest iteration message: %w", err)
	}
	return body, true, nil
}

func (t *ledgerTx) DueIterations(now time.Time) ([]*models.Iteration, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT iteration_id, instrument_id, phone_number, message_body,
		        is_open, opens_datetime, created_datetime, updated_by
		 FROM iterations
		 WHERE is_open = 0 AND opens_datetime <= ?
		 ORDER BY iteration_id ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("query due iterations: %w", err)
	}
	defer rows.Close()

	var out []*models.Iteration
	for rows.Next() {
		var (
			it     models.Iteration
			isOpen int64
		)
		if err := rows.Scan(&it.IterationID, &it.InstrumentID, &it.PhoneNumber, &it.MessageBody,
			&isOpen, &it.OpensAt, &it.CreatedAt, &it.UpdatedBy); err != nil {
			return nil, fmt.Errorf("scan iteration: %w", err)
		}
		it.IsOpen = isOpen != 0
		out = append(out, &it)
	}
	return out, rows.Err()
}

func (t *ledgerTx) InstrumentItems(instrumentID int64) ([]*models.Item, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT item_id, instrument_id, item_text, created_datetime, updated_by
		 FROM items WHERE instrument_id = ? ORDER BY item_id ASC`, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var out []*models.Item
	for rows.Next() {
		var it models.Item
		if err := rows.Scan(&it.ItemID, &it.InstrumentID, &it.Text, &it.CreatedAt, &it.UpdatedBy); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}

func (t *ledgerTx) IterationSeeded(iterationID int64) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT COUNT(response_id) FROM responses WHERE iteration_id = ?`, iterationID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check iteration seeded: %w", err)
	}
	return n > 0, nil
}

func (t *ledgerTx) InsertResponse(r *models.Response) error {
	var itemID sql.NullInt64
	if r.ItemID != nil {
		itemID = sql.NullInt64{Int64: *r.ItemID, Valid: true}
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO responses (iteration_id, phone_number, item_id, item_text,
		                        opens_datetime, status, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.IterationID, r.PhoneNumber, itemID, r.ItemText, r.OpensAt, string(r.Status), r.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

func (t *ledgerTx) OpenIteration(iterationID int64, actor string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE iterations SET is_open = 1, updated_by = ? WHERE iteration_id = ?`,
		actor, iterationID)
	if err != nil {
		return fmt.Errorf("open iteration: %w", err)
	}
	return nil
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
