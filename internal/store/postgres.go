package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/model"
)

// Schema is the DDL applied by Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS markets (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	status      TEXT NOT NULL,
	base_asset  TEXT NOT NULL,
	quote_asset TEXT NOT NULL,
	tick_size   NUMERIC NOT NULL,
	lot_size    NUMERIC NOT NULL,
	venue       TEXT NOT NULL DEFAULT '',
	symbol      TEXT NOT NULL DEFAULT '',
	resolved_as TEXT NOT NULL DEFAULT ''
);

ALTER TABLE markets ADD COLUMN IF NOT EXISTS resolved_as TEXT NOT NULL DEFAULT '';

CREATE TABLE IF NOT EXISTS wallet_events (
	wallet        TEXT   NOT NULL,
	seq           BIGINT NOT NULL,
	id            TEXT   NOT NULL,
	kind          TEXT   NOT NULL,
	order_id      TEXT   NOT NULL DEFAULT '',
	fill_id       TEXT   NOT NULL DEFAULT '',
	market_id     TEXT   NOT NULL DEFAULT '',
	side          TEXT   NOT NULL DEFAULT '',
	order_type    TEXT   NOT NULL DEFAULT '',
	time_in_force TEXT   NOT NULL DEFAULT '',
	outcome       TEXT   NOT NULL DEFAULT '',
	post_only     BOOLEAN NOT NULL DEFAULT FALSE,
	reduce_only   BOOLEAN NOT NULL DEFAULT FALSE,
	price         NUMERIC,
	quantity      NUMERIC NOT NULL DEFAULT 0,
	quote         NUMERIC NOT NULL DEFAULT 0,
	fee           NUMERIC NOT NULL DEFAULT 0,
	at            TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (wallet, seq)
);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *PostgresStore) SaveMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, type, status, base_asset, quote_asset, tick_size, lot_size, venue, symbol, resolved_as)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		     type = EXCLUDED.type, status = EXCLUDED.status,
		     base_asset = EXCLUDED.base_asset, quote_asset = EXCLUDED.quote_asset,
		     tick_size = EXCLUDED.tick_size, lot_size = EXCLUDED.lot_size,
		     venue = EXCLUDED.venue, symbol = EXCLUDED.symbol, resolved_as = EXCLUDED.resolved_as`,
		m.ID, string(m.Type), string(m.Status), m.BaseAsset, m.QuoteAsset,
		m.TickSize.String(), m.LotSize.String(), m.Venue, m.Symbol, string(m.ResolvedAs),
	)
	return err
}

const marketColumns = `id, type, status, base_asset, quote_asset, tick_size::TEXT, lot_size::TEXT, venue, symbol, resolved_as`

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return &m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// Append inserts recs in one transaction after checking they continue the
// log. The (wallet, seq) primary key turns a concurrent writer into
// ErrSeqConflict.
func (s *PostgresStore) Append(ctx context.Context, wallet string, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var last uint64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM wallet_events WHERE wallet = $1`, wallet).Scan(&last); err != nil {
		return fmt.Errorf("read last seq for %s: %w", wallet, err)
	}
	if err := checkSequence(wallet, last, recs); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(
			`INSERT INTO wallet_events (wallet, seq, id, kind, order_id, fill_id, market_id, side,
			     order_type, time_in_force, outcome, post_only, reduce_only,
			     price, quantity, quote, fee, at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			     $14::NUMERIC, $15::NUMERIC, $16::NUMERIC, $17::NUMERIC, $18)`,
			wallet, r.Seq, r.ID, r.Kind, r.OrderID, r.FillID, r.MarketID, r.Side,
			r.OrderType, r.TimeInForce, r.Outcome, r.PostOnly, r.ReduceOnly,
			nullableNumeric(r.Price), r.Quantity.String(), r.Quote.String(), r.Fee.String(), r.At,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSeqConflict
		}
		return fmt.Errorf("append events for %s: %w", wallet, err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Events(ctx context.Context, wallet string, afterSeq uint64) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT wallet, seq, id, kind, order_id, fill_id, market_id, side,
		        order_type, time_in_force, outcome, post_only, reduce_only,
		        price::TEXT, quantity::TEXT, quote::TEXT, fee::TEXT, at
		 FROM wallet_events WHERE wallet = $1 AND seq > $2 ORDER BY seq`, wallet, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *PostgresStore) Wallets(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT wallet FROM wallet_events ORDER BY wallet`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// pgxRow is satisfied by pgx.Row and pgx.Rows.
type pgxRow interface {
	Scan(dest ...any) error
}

type pgxRows interface {
	pgxRow
	Next() bool
	Err() error
}

func scanMarket(row pgxRow) (model.Market, error) {
	var m model.Market
	var typ, status, tick, lot, resolved string
	if err := row.Scan(&m.ID, &typ, &status, &m.BaseAsset, &m.QuoteAsset, &tick, &lot, &m.Venue, &m.Symbol, &resolved); err != nil {
		return model.Market{}, err
	}
	m.Type = model.MarketType(typ)
	m.Status = model.MarketStatus(status)
	m.ResolvedAs = model.Outcome(resolved)
	m.TickSize, _ = decimal.NewFromString(tick)
	m.LotSize, _ = decimal.NewFromString(lot)
	return m, nil
}

func scanRecords(rows pgxRows) ([]Record, error) {
	var recs []Record
	for rows.Next() {
		var r Record
		var price *string
		var qtyS, quoteS, feeS string

		if err := rows.Scan(&r.Wallet, &r.Seq, &r.ID, &r.Kind, &r.OrderID, &r.FillID, &r.MarketID, &r.Side,
			&r.OrderType, &r.TimeInForce, &r.Outcome, &r.PostOnly, &r.ReduceOnly,
			&price, &qtyS, &quoteS, &feeS, &r.At); err != nil {
			return nil, err
		}

		if price != nil {
			p, err := decimal.NewFromString(*price)
			if err != nil {
				return nil, fmt.Errorf("seq %d price %q: %w", r.Seq, *price, err)
			}
			r.Price = decimal.NewNullDecimal(p)
		}
		r.Quantity, _ = decimal.NewFromString(qtyS)
		r.Quote, _ = decimal.NewFromString(quoteS)
		r.Fee, _ = decimal.NewFromString(feeS)

		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func nullableNumeric(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}
