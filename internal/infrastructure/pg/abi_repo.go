package pg

import (
	"context"

	"price-aggregator/internal/application"
	"price-aggregator/internal/domain"
	"price-aggregator/internal/infrastructure/logx"

	"go.uber.org/zap"
)

type ABIRepo struct{ db *DB }

var _ application.ABIStore = (*ABIRepo)(nil)

func NewABIRepo(db *DB) *ABIRepo { return &ABIRepo{db: db} }

func (r *ABIRepo) GetAll(ctx context.Context) (map[string]domain.ContractABI, error) {
	const q = `SELECT ticker, contract_address, decimals, chain, active, abi FROM contract_abis`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		logx.L().Error("sql.query_failed", zap.String("repo", "abi"), zap.Error(err))
		return nil, err
	}
	defer rows.Close()
	out := map[string]domain.ContractABI{}
	for rows.Next() {
		var a domain.ContractABI
		var abi []byte
		if err := rows.Scan(&a.Ticker, &a.ContractAddress, &a.Decimals, &a.Chain, &a.Active, &abi); err != nil {
			return nil, err
		}
		a.ABI = abi
		out[a.Ticker] = a
	}
	return out, rows.Err()
}

func (r *ABIRepo) Set(ctx context.Context, ticker string, a domain.ContractABI) error {
	const up = `
        INSERT INTO contract_abis(ticker, contract_address, decimals, chain, active, abi, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW())
        ON CONFLICT (ticker) DO UPDATE
          SET contract_address=EXCLUDED.contract_address, decimals=EXCLUDED.decimals, chain=EXCLUDED.chain,
              active=EXCLUDED.active, abi=EXCLUDED.abi, updated_at=NOW()`
	log := logx.L().With(zap.String("repo", "abi"), zap.String("operation", "Set"), zap.String("ticker", ticker))
	log.Info("sql.exec_start")
	if _, err := r.db.Pool.Exec(ctx, up, ticker, a.ContractAddress, a.Decimals, a.Chain, a.Active, []byte(a.ABI)); err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return err
	}
	log.Info("sql.exec_success")
	return nil
}
