package provider

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	"price-aggregator/internal/application"
	"price-aggregator/internal/domain"
	"price-aggregator/internal/infrastructure/logx"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	chainlinkName = "chainlink"
	// Currencies404Key lists oracle tickers that have no catalog currency.
	Currencies404Key = "currencies404"

	chainlinkParallelCalls = 8
)

// ContractCaller executes read-only contract calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type feedSource interface {
	Feeds(ctx context.Context) (map[string]domain.ContractABI, error)
}

// Chainlink reads latestRoundData from price feed contracts.
type Chainlink struct {
	caller  ContractCaller
	feeds   feedSource
	catalog application.CurrencyStore
	cache   application.ReferenceCache
}

var _ application.LiveSource = (*Chainlink)(nil)

func NewChainlink(caller ContractCaller, registry *ContractRegistry, catalog application.CurrencyStore, cache application.ReferenceCache) *Chainlink {
	return &Chainlink{caller: caller, feeds: registry, catalog: catalog, cache: cache}
}

func (p *Chainlink) Name() string { return domain.SourceChainlink }

// FetchLive reads every active feed among symbols. A failing feed is logged and left out.
func (p *Chainlink) FetchLive(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	ctx, span := tracer.Start(ctx, "chainlink.fetch-live")
	defer span.End()

	feeds, err := p.feeds.Feeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", chainlinkName, err)
	}
	want := upperSet(symbols)
	var (
		unrequested []string
		todo        []domain.ContractABI
	)
	for ticker, f := range feeds {
		switch {
		case !f.Active:
		case want[ticker]:
			todo = append(todo, f)
		default:
			unrequested = append(unrequested, ticker)
		}
	}
	if err := p.recordMissing(ctx, unrequested); err != nil {
		logx.WithFields(ctx).Warn("chainlink.currencies404_failed", zap.Error(err))
	}
	span.SetAttributes(attribute.Int("feeds", len(todo)))

	var mu sync.Mutex
	out := make(map[string]domain.Quote, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chainlinkParallelCalls)
	for _, f := range todo {
		g.Go(func() error {
			q, err := p.latest(gctx, f)
			if err != nil {
				logx.WithFields(ctx).Warn("chainlink.feed_failed",
					zap.String("ticker", f.Ticker),
					zap.String("address", f.ContractAddress),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			out[f.Ticker] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// recordMissing stores the feed tickers that are not in the catalog at all.
func (p *Chainlink) recordMissing(ctx context.Context, tickers []string) error {
	if len(tickers) == 0 || p.catalog == nil {
		return nil
	}
	all, err := p.catalog.Search(ctx, application.CurrencyFilter{}, 99999, 0)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(all))
	for _, c := range all {
		known[strings.ToUpper(c.Ticker)] = true
	}
	missing := map[string]string{}
	for _, t := range tickers {
		if !known[t] {
			missing[t] = "false"
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for t := range missing {
		names = append(names, t)
	}
	slices.Sort(names)
	logx.WithFields(ctx).Warn("chainlink.currencies_not_found",
		zap.Strings("tickers", names),
		zap.String("hint", `set "active": false on these entries in the contracts file`),
	)
	if p.cache == nil {
		return nil
	}
	return p.cache.SetAll(ctx, Currencies404Key, missing, true)
}

func (p *Chainlink) latest(ctx context.Context, f domain.ContractABI) (domain.Quote, error) {
	if f.Chain != "" && f.Chain != "ethereum" {
		return domain.Quote{}, fmt.Errorf("%w: unsupported chain %q", domain.ErrConfiguration, f.Chain)
	}
	parsed, err := abi.JSON(bytes.NewReader(f.ABI))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: parse abi: %w", domain.ErrProvider, err)
	}
	addr := common.HexToAddress(f.ContractAddress)

	round, err := p.call(ctx, parsed, addr, "latestRoundData")
	if err != nil {
		return domain.Quote{}, err
	}
	if len(round) < 4 {
		return domain.Quote{}, fmt.Errorf("%w: latestRoundData returned %d values", domain.ErrProvider, len(round))
	}
	answer, ok1 := round[1].(*big.Int)
	updatedAt, ok2 := round[3].(*big.Int)
	if !ok1 || !ok2 {
		return domain.Quote{}, fmt.Errorf("%w: unexpected latestRoundData types", domain.ErrProvider)
	}

	decimals := f.Decimals
	if out, err := p.call(ctx, parsed, addr, "decimals"); err == nil && len(out) == 1 {
		if d, ok := out[0].(uint8); ok && d > 0 {
			decimals = int(d)
		}
	}
	if decimals <= 0 {
		decimals = DefaultFeedDecimals
	}

	return domain.Quote{
		Symbol:          f.Ticker,
		RatioOfExchange: domain.ROEFromDecimal(decimal.NewFromBigInt(answer, -int32(decimals))),
		UpdatedAt:       time.Unix(updatedAt.Int64(), 0).UTC(),
		Source:          p.Name(),
	}, nil
}

func (p *Chainlink) call(ctx context.Context, parsed abi.ABI, addr common.Address, method string) ([]any, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %w", domain.ErrProvider, method, err)
	}
	raw, err := p.caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: call %s: %w", domain.ErrProvider, method, err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %w", domain.ErrProvider, method, err)
	}
	return out, nil
}
