package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists owners, balances and entries in the jitta_card schema.
type PostgresStore struct {
	db             *pgxpool.Pool
	acquireTimeout time.Duration
}

// NewPostgresStore wraps an injected pool. acquireTimeout bounds how long an
// atomic scope or a read waits for a connection; zero means wait for ctx only.
func NewPostgresStore(db *pgxpool.Pool, acquireTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, acquireTimeout: acquireTimeout}
}

func (s *PostgresStore) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	actx := ctx
	if s.acquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, s.acquireTimeout)
		defer cancel()
	}
	conn, err := s.db.Acquire(actx)
	if err != nil {
		return nil, unavailable(fmt.Errorf("acquire connection: %w", err))
	}
	return conn, nil
}

// Atomic runs fn inside a read committed transaction. Balances are protected
// by row locks taken through Tx.Lock.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return unavailable(fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *PostgresStore) Balances(ctx context.Context, ownerID uuid.UUID, kind Kind) ([]Balance, error) {
	const query = `
        SELECT id, user_id, wallet_name, balance::text
        FROM jitta_card.wallets
        WHERE user_id = $1 AND ($2::text = 'ALL' OR wallet_name = $2::text)
        ORDER BY CASE wallet_name WHEN 'MAIN' THEN 0 WHEN 'EARN' THEN 1 ELSE 2 END`
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, ownerID, string(kind))
	if err != nil {
		return nil, classify(fmt.Errorf("query balances: %w", err))
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (s *PostgresStore) Entries(ctx context.Context, ownerID uuid.UUID, filter EntryFilter) ([]Entry, error) {
	const query = `
        SELECT t.id, t.seq, t.from_wallet_id, t.to_wallet_id, t.amount::text, t.type, t.status,
               t.transaction_date, COALESCE(t.remarks, '')
        FROM jitta_card.transactions t
        WHERE EXISTS (
                SELECT 1 FROM jitta_card.wallets w
                WHERE w.user_id = $1
                  AND ($2::text = '' OR w.wallet_name = $2::text)
                  AND (w.id = t.from_wallet_id OR w.id = t.to_wallet_id))
          AND ($3::text = '' OR t.type = $3::text)
          AND ($4::timestamptz IS NULL OR t.transaction_date >= $4::timestamptz)
          AND ($5::timestamptz IS NULL OR t.transaction_date <= $5::timestamptz)
        ORDER BY t.transaction_date DESC, t.seq DESC`

	kind := string(filter.Kind)
	if filter.Kind == KindAll {
		kind = ""
	}
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, ownerID, kind, string(filter.Operation), optionalTime(filter.From), optionalTime(filter.To))
	if err != nil {
		return nil, classify(fmt.Errorf("query entries: %w", err))
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			amountStr string
			op        string
		)
		if err := rows.Scan(&e.ID, &e.Sequence, &e.SourceID, &e.DestinationID, &amountStr, &op, &e.Status, &e.CreatedAt, &e.Remarks); err != nil {
			return nil, classify(fmt.Errorf("scan entry: %w", err))
		}
		e.Operation = Operation(op)
		if e.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("parse entry amount %q: %w", amountStr, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) CreateOwner(ctx context.Context, owner Owner) error {
	const query = `INSERT INTO jitta_card.users (id, username, is_round_up, created_at) VALUES ($1, $2, $3, $4)`
	_, err := t.tx.Exec(ctx, query, owner.ID, strings.ToLower(owner.Username), owner.RoundUp, owner.CreatedAt)
	if isUniqueViolation(err) {
		return failf(ErrOwnerExists, "username %s is already registered", owner.Username)
	}
	return err
}

func (t *pgTx) Owner(ctx context.Context, id uuid.UUID) (Owner, error) {
	const query = `SELECT id, username, is_round_up, created_at FROM jitta_card.users WHERE id = $1`
	o, err := scanOwner(t.tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Owner{}, failf(ErrNotFound, "owner %s not found", id)
	}
	return o, err
}

func (t *pgTx) OwnerByUsername(ctx context.Context, username string) (Owner, error) {
	const query = `SELECT id, username, is_round_up, created_at FROM jitta_card.users WHERE username = $1`
	o, err := scanOwner(t.tx.QueryRow(ctx, query, strings.ToLower(username)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Owner{}, failf(ErrNotFound, "user %s not found", username)
	}
	return o, err
}

func (t *pgTx) SetRoundUp(ctx context.Context, id uuid.UUID, enabled bool) (Owner, error) {
	const query = `UPDATE jitta_card.users SET is_round_up = $1 WHERE id = $2
        RETURNING id, username, is_round_up, created_at`
	o, err := scanOwner(t.tx.QueryRow(ctx, query, enabled, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Owner{}, failf(ErrNotFound, "owner %s not found", id)
	}
	return o, err
}

func (t *pgTx) CreateBalance(ctx context.Context, b Balance) error {
	const query = `INSERT INTO jitta_card.wallets (id, user_id, wallet_name, balance) VALUES ($1, $2, $3, $4::numeric)`
	_, err := t.tx.Exec(ctx, query, b.ID, b.OwnerID, string(b.Kind), Normalize(b.Amount).StringFixed(Scale))
	if isUniqueViolation(err) {
		return failf(ErrOwnerExists, "%s wallet already exists for owner %s", b.Kind, b.OwnerID)
	}
	return err
}

// Lock takes one row lock per key, in canonical order.
func (t *pgTx) Lock(ctx context.Context, keys ...BalanceKey) (map[BalanceKey]Balance, error) {
	const query = `
        SELECT id, user_id, wallet_name, balance::text
        FROM jitta_card.wallets
        WHERE user_id = $1 AND wallet_name = $2
        FOR UPDATE`

	out := make(map[BalanceKey]Balance, len(keys))
	for _, key := range SortKeys(keys) {
		b, err := scanBalance(t.tx.QueryRow(ctx, query, key.OwnerID, string(key.Kind)))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		out[key] = b
	}
	return out, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE jitta_card.wallets SET balance = $1::numeric WHERE id = $2`,
		Normalize(amount).StringFixed(Scale), id)
	if err != nil {
		return fmt.Errorf("update wallet %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return failf(ErrNotFound, "wallet %s not found", id)
	}
	return nil
}

func (t *pgTx) Append(ctx context.Context, e Entry) (Entry, error) {
	const query = `
        INSERT INTO jitta_card.transactions
            (id, from_wallet_id, to_wallet_id, amount, type, status, transaction_date, remarks)
        VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)
        RETURNING seq`
	e.Amount = Normalize(e.Amount)
	err := t.tx.QueryRow(ctx, query, e.ID, e.SourceID, e.DestinationID, e.Amount.StringFixed(Scale),
		string(e.Operation), e.Status, e.CreatedAt, e.Remarks).Scan(&e.Sequence)
	if err != nil {
		return Entry{}, fmt.Errorf("append entry %s: %w", e.ID, err)
	}
	return e, nil
}

func scanOwner(row pgx.Row) (Owner, error) {
	var o Owner
	if err := row.Scan(&o.ID, &o.Username, &o.RoundUp, &o.CreatedAt); err != nil {
		return Owner{}, err
	}
	return o, nil
}

func scanBalance(row pgx.Row) (Balance, error) {
	var (
		b         Balance
		kind      string
		amountStr string
	)
	if err := row.Scan(&b.ID, &b.OwnerID, &kind, &amountStr); err != nil {
		return Balance{}, err
	}
	b.Kind = Kind(kind)
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return Balance{}, fmt.Errorf("parse balance %q: %w", amountStr, err)
	}
	b.Amount = amount
	return b, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
