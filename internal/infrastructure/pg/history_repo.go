package pg

import (
	"context"
	"time"

	"price-aggregator/internal/application"
	"price-aggregator/internal/domain"
	"price-aggregator/internal/infrastructure/logx"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type HistoryRepo struct{ db *DB }

var _ application.HistoryStore = (*HistoryRepo)(nil)

func NewHistoryRepo(db *DB) *HistoryRepo { return &HistoryRepo{db: db} }

const historyInsert = `
        INSERT INTO currency_price_history(id, currency_id, ticker, type, date, ratio_of_exchange, market_cap_usd, source)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// SetAll upserts by deterministic entry ID; a second sync of the same day overwrites in place.
func (r *HistoryRepo) SetAll(ctx context.Context, items map[string]domain.HistoryEntry, insertOnly bool) error {
	if len(items) == 0 {
		return nil
	}
	stmt := historyInsert + `
        ON CONFLICT (id) DO UPDATE
          SET ratio_of_exchange=EXCLUDED.ratio_of_exchange, market_cap_usd=EXCLUDED.market_cap_usd, source=EXCLUDED.source`
	if insertOnly {
		stmt = historyInsert + ` ON CONFLICT (id) DO NOTHING`
	}
	b := &pgx.Batch{}
	for id, e := range items {
		b.Queue(stmt, id, e.CurrencyID, e.Ticker, string(e.Type), e.Date, int64(e.RatioOfExchange), e.MarketCapUSD, e.Source)
	}
	log := logx.L().With(
		zap.String("repo", "history"),
		zap.String("operation", "SetAll"),
		zap.Int("items", len(items)),
	)
	log.Debug("sql.exec_start")
	n, err := r.db.execBatch(ctx, b)
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return err
	}
	log.Debug("sql.exec_success", zap.Int64("rows_affected", n))
	return nil
}

func (r *HistoryRepo) Search(ctx context.Context, currencyID string, limit, skip int) ([]domain.HistoryEntry, error) {
	const q = `
        SELECT id, currency_id, ticker, type, date, ratio_of_exchange, market_cap_usd, source
        FROM currency_price_history
        WHERE currency_id=$1
        ORDER BY date DESC
        LIMIT $2 OFFSET $3`
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := r.db.Pool.Query(ctx, q, currencyID, lim, skip)
	if err != nil {
		logx.L().Error("sql.query_failed", zap.String("repo", "history"), zap.Error(err))
		return nil, err
	}
	defer rows.Close()
	var out []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var typ string
		var roe int64
		var date time.Time
		if err := rows.Scan(&e.ID, &e.CurrencyID, &e.Ticker, &typ, &date, &roe, &e.MarketCapUSD, &e.Source); err != nil {
			return nil, err
		}
		e.Type = domain.CurrencyType(typ)
		e.RatioOfExchange = domain.ROE(roe)
		e.Date = domain.Day(date)
		out = append(out, e)
	}
	return out, rows.Err()
}
