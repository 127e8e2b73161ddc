package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"price-aggregator/internal/application"
	"price-aggregator/internal/domain"
	"price-aggregator/internal/infrastructure/logx"

	"go.uber.org/zap"
)

// DefaultFeedDecimals is used when a contract entry leaves decimals unset.
const DefaultFeedDecimals = 8

// AggregatorV3ABI covers the price feed methods the oracle adapter calls.
const AggregatorV3ABI = `[
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"description","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`

type abiLookup interface {
	ContractABI(ctx context.Context, address string) (json.RawMessage, error)
}

// ContractRegistry reconciles the static feed list with the stored ABIs. An entry whose
// ABI is missing or whose address changed gets its ABI looked up again.
type ContractRegistry struct {
	file   string
	store  application.ABIStore
	lookup abiLookup
}

// NewContractRegistry builds the registry. A nil lookup stores AggregatorV3ABI for new entries.
func NewContractRegistry(file string, store application.ABIStore, lookup *Etherscan) *ContractRegistry {
	r := &ContractRegistry{file: file, store: store}
	if lookup != nil {
		r.lookup = lookup
	}
	return r
}

// LoadContractSpecs reads the feed list. A missing file is an empty list.
func LoadContractSpecs(path string) ([]domain.ContractSpec, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read contracts file: %w", err)
	}
	var specs []domain.ContractSpec
	if err := json.Unmarshal(b, &specs); err != nil {
		return nil, fmt.Errorf("%w: parse contracts file %s: %w", domain.ErrConfiguration, path, err)
	}
	return specs, nil
}

// Feeds returns the stored feeds keyed by ticker after syncing the feed list into the store.
func (r *ContractRegistry) Feeds(ctx context.Context) (map[string]domain.ContractABI, error) {
	specs, err := LoadContractSpecs(r.file)
	if err != nil {
		return nil, err
	}
	stored, err := r.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load abis: %w", domain.ErrStore, err)
	}
	if stored == nil {
		stored = map[string]domain.ContractABI{}
	}
	log := logx.WithFields(ctx)

	for _, spec := range specs {
		ticker := strings.ToUpper(strings.TrimSpace(spec.Ticker))
		if ticker == "" || spec.ContractAddress == "" {
			continue
		}
		want := domain.ContractABI{
			Ticker:          ticker,
			ContractAddress: spec.ContractAddress,
			Decimals:        spec.Decimals,
			Chain:           spec.Chain,
			Active:          spec.Active == nil || *spec.Active,
		}
		if want.Decimals <= 0 {
			want.Decimals = DefaultFeedDecimals
		}
		if want.Chain == "" {
			want.Chain = "ethereum"
		}

		cur, ok := stored[ticker]
		if ok && len(cur.ABI) > 0 && strings.EqualFold(cur.ContractAddress, want.ContractAddress) {
			want.ABI = cur.ABI
			if cur.Active == want.Active && cur.Decimals == want.Decimals && cur.Chain == want.Chain {
				continue
			}
		} else {
			want.ABI = json.RawMessage(AggregatorV3ABI)
			if r.lookup != nil {
				abi, err := r.lookup.ContractABI(ctx, want.ContractAddress)
				if err != nil {
					log.Warn("chainlink.abi_lookup_failed",
						zap.String("ticker", ticker),
						zap.String("address", want.ContractAddress),
						zap.Error(err),
					)
				} else {
					want.ABI = abi
				}
			}
		}

		if err := r.store.Set(ctx, ticker, want); err != nil {
			return nil, fmt.Errorf("%w: save abi %s: %w", domain.ErrStore, ticker, err)
		}
		stored[ticker] = want
		log.Info("chainlink.abi_saved", zap.String("ticker", ticker), zap.String("address", want.ContractAddress))
	}
	return stored, nil
}
