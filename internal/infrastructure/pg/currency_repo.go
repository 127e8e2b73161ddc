package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"price-aggregator/internal/application"
	"price-aggregator/internal/domain"
	"price-aggregator/internal/infrastructure/logx"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type CurrencyRepo struct{ db *DB }

var _ application.CurrencyStore = (*CurrencyRepo)(nil)

func NewCurrencyRepo(db *DB) *CurrencyRepo { return &CurrencyRepo{db: db} }

const currencyColumns = `id, ticker, name, type, ratio_of_exchange, price_updated_at, source, rank, market_cap_usd`

func scanCurrencies(rows pgx.Rows) ([]domain.Currency, error) {
	defer rows.Close()
	var out []domain.Currency
	for rows.Next() {
		var c domain.Currency
		var typ string
		var roe int64
		var updated *time.Time
		if err := rows.Scan(&c.ID, &c.Ticker, &c.Name, &typ, &roe, &updated, &c.Source, &c.Rank, &c.MarketCapUSD); err != nil {
			return nil, err
		}
		c.Type = domain.CurrencyType(typ)
		c.RatioOfExchange = domain.ROE(roe)
		c.PriceUpdatedAt = fromNullTime(updated)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CurrencyRepo) GetAll(ctx context.Context, ids []string, limit int) (map[string]domain.Currency, error) {
	q := `SELECT ` + currencyColumns + ` FROM currencies`
	var args []any
	if ids != nil {
		q += ` WHERE id = ANY($1)`
		args = append(args, ids)
	}
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}
	log := logx.L().With(zap.String("repo", "currency"), zap.String("operation", "GetAll"), zap.Int("ids", len(ids)))
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		log.Error("sql.query_failed", zap.Error(err))
		return nil, err
	}
	list, err := scanCurrencies(rows)
	if err != nil {
		log.Error("sql.scan_failed", zap.Error(err))
		return nil, err
	}
	out := make(map[string]domain.Currency, len(list))
	for _, c := range list {
		out[c.ID] = c
	}
	log.Debug("sql.query_success", zap.Int("rows", len(out)))
	return out, nil
}

func (r *CurrencyRepo) Search(ctx context.Context, f application.CurrencyFilter, limit, skip int) ([]domain.Currency, error) {
	var where []string
	var args []any
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		where = append(where, fmt.Sprintf("type = ANY($%d)", len(args)))
	}
	if f.Ticker != "" {
		args = append(args, f.Ticker)
		where = append(where, fmt.Sprintf("ticker = $%d", len(args)))
	}
	q := `SELECT ` + currencyColumns + ` FROM currencies`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY name DESC, id`
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if skip > 0 {
		args = append(args, skip)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	log := logx.L().With(zap.String("repo", "currency"), zap.String("operation", "Search"), zap.String("sql", q))
	log.Debug("sql.query_start")
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		log.Error("sql.query_failed", zap.Error(err))
		return nil, err
	}
	out, err := scanCurrencies(rows)
	if err != nil {
		log.Error("sql.scan_failed", zap.Error(err))
		return nil, err
	}
	log.Debug("sql.query_success", zap.Int("rows", len(out)))
	return out, nil
}

const currencyInsert = `
        INSERT INTO currencies(` + currencyColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const currencyUpsert = currencyInsert + `
        ON CONFLICT (id) DO UPDATE
          SET ticker=EXCLUDED.ticker, name=EXCLUDED.name, type=EXCLUDED.type,
              ratio_of_exchange=EXCLUDED.ratio_of_exchange, price_updated_at=EXCLUDED.price_updated_at,
              source=EXCLUDED.source, rank=EXCLUDED.rank, market_cap_usd=EXCLUDED.market_cap_usd`

func (r *CurrencyRepo) SetAll(ctx context.Context, items map[string]domain.Currency, insertOnly bool) error {
	if len(items) == 0 {
		return nil
	}
	stmt := currencyUpsert
	if insertOnly {
		stmt = currencyInsert + ` ON CONFLICT (id) DO NOTHING`
	}
	b := &pgx.Batch{}
	for id, c := range items {
		b.Queue(stmt, id, c.Ticker, c.Name, string(c.Type), int64(c.RatioOfExchange),
			nullTime(c.PriceUpdatedAt), c.Source, c.Rank, c.MarketCapUSD)
	}
	log := logx.L().With(
		zap.String("repo", "currency"),
		zap.String("operation", "SetAll"),
		zap.Int("items", len(items)),
		zap.Bool("insert_only", insertOnly),
	)
	log.Info("sql.exec_start")
	n, err := r.db.execBatch(ctx, b)
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return err
	}
	log.Info("sql.exec_success", zap.Int64("rows_affected", n))
	return nil
}
