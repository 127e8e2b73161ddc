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

type WatermarkRepo struct{ db *DB }

var _ application.WatermarkStore = (*WatermarkRepo)(nil)

func NewWatermarkRepo(db *DB) *WatermarkRepo { return &WatermarkRepo{db: db} }

func (r *WatermarkRepo) GetAll(ctx context.Context, source string, currencyIDs []string) (map[string]domain.SyncWatermark, error) {
	const q = `
        SELECT currency_id, last_day FROM sync_watermarks
        WHERE source=$1 AND currency_id = ANY($2)`
	rows, err := r.db.Pool.Query(ctx, q, source, currencyIDs)
	if err != nil {
		logx.L().Error("sql.query_failed", zap.String("repo", "watermark"), zap.Error(err))
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]domain.SyncWatermark, len(currencyIDs))
	for rows.Next() {
		w := domain.SyncWatermark{Source: source}
		var last time.Time
		if err := rows.Scan(&w.CurrencyID, &last); err != nil {
			return nil, err
		}
		w.LastDay = domain.Day(last)
		out[w.CurrencyID] = w
	}
	return out, rows.Err()
}

// SetAll never moves a stored watermark backwards.
func (r *WatermarkRepo) SetAll(ctx context.Context, items []domain.SyncWatermark) error {
	if len(items) == 0 {
		return nil
	}
	const up = `
        INSERT INTO sync_watermarks(currency_id, source, last_day, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (currency_id, source) DO UPDATE
          SET last_day=GREATEST(sync_watermarks.last_day, EXCLUDED.last_day), updated_at=NOW()`
	b := &pgx.Batch{}
	for _, w := range items {
		b.Queue(up, w.CurrencyID, w.Source, domain.Day(w.LastDay))
	}
	log := logx.L().With(zap.String("repo", "watermark"), zap.String("operation", "SetAll"), zap.Int("items", len(items)))
	n, err := r.db.execBatch(ctx, b)
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return err
	}
	log.Info("sql.exec_success", zap.Int64("rows_affected", n))
	return nil
}
