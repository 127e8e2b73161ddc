package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// execBatch sends b in one transaction, so a bulk upsert either lands whole or not at all.
func (d *DB) execBatch(ctx context.Context, b *pgx.Batch) (int64, error) {
	tx, err := d.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	br := tx.SendBatch(ctx, b)
	var affected int64
	for i := 0; i < b.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("batch item %d: %w", i, err)
		}
		affected += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	return affected, tx.Commit(ctx)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
