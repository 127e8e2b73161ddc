package application

import (
	"context"
	"fmt"
	"strings"

	"price-aggregator/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultReferenceTicker = "USD"

type ReconcilerConfig struct {
	// ReferenceTicker is the pinned base unit that reconciliation never rewrites.
	ReferenceTicker string
	// OracleForCrypto lets the oracle tier win for crypto currencies too.
	OracleForCrypto bool
}

// Reconciler picks one current price per catalog currency from the live sources.
// Any of the sources may be nil when disabled.
type Reconciler struct {
	cfg        ReconcilerConfig
	currencies CurrencyStore
	oracle     LiveSource
	live       LiveSource
	listing    LiveSource
	incidents  IncidentSink
	log        *zap.Logger
}

type ReconcilerOption func(*Reconciler)

func WithOracle(s LiveSource) ReconcilerOption  { return func(r *Reconciler) { r.oracle = s } }
func WithLive(s LiveSource) ReconcilerOption    { return func(r *Reconciler) { r.live = s } }
func WithListing(s LiveSource) ReconcilerOption { return func(r *Reconciler) { r.listing = s } }
func WithReconcilerIncidents(s IncidentSink) ReconcilerOption {
	return func(r *Reconciler) { r.incidents = s }
}
func WithReconcilerLogger(l *zap.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.log = l }
}

func NewReconciler(cfg ReconcilerConfig, currencies CurrencyStore, opts ...ReconcilerOption) *Reconciler {
	if cfg.ReferenceTicker == "" {
		cfg.ReferenceTicker = DefaultReferenceTicker
	}
	r := &Reconciler{cfg: cfg, currencies: currencies}
	for _, opt := range opts {
		opt(r)
	}
	if r.incidents == nil {
		r.incidents = nopSink{}
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

type ReconcileReport struct {
	Considered int
	Updated    int
	Unchanged  int
	ByTier     map[domain.PriceTier]int
}

// PrecedenceRule is one entry of the ordered tier list: the first rule that applies
// to a currency and holds a positive quote for its ticker wins.
type PrecedenceRule struct {
	Tier    domain.PriceTier
	Applies func(domain.Currency) bool
	Quotes  map[string]domain.Quote
}

// Resolve walks rules in order and falls back to the stored value.
func Resolve(c domain.Currency, rules []PrecedenceRule) domain.PriceResolution {
	key := strings.ToUpper(c.Ticker)
	for _, rule := range rules {
		if !rule.Applies(c) {
			continue
		}
		q, ok := rule.Quotes[key]
		if !ok || q.RatioOfExchange <= 0 {
			continue
		}
		return domain.PriceResolution{Tier: rule.Tier, Quote: q}
	}
	return domain.Stored(c)
}

func isType(types ...domain.CurrencyType) func(domain.Currency) bool {
	return func(c domain.Currency) bool {
		for _, t := range types {
			if c.Type == t {
				return true
			}
		}
		return false
	}
}

// Rules builds the precedence list for one pass from the fetched quote maps.
func (r *Reconciler) Rules(oracle, live, listing map[string]domain.Quote) []PrecedenceRule {
	oracleTypes := []domain.CurrencyType{domain.TypeFiat}
	if r.cfg.OracleForCrypto {
		oracleTypes = append(oracleTypes, domain.TypeCrypto)
	}
	return []PrecedenceRule{
		{Tier: domain.TierOracle, Applies: isType(oracleTypes...), Quotes: oracle},
		{Tier: domain.TierLiveCrypto, Applies: isType(domain.TypeCrypto), Quotes: live},
		{Tier: domain.TierListing, Applies: isType(domain.TypeCrypto), Quotes: listing},
	}
}

// Reconcile runs one live pass and writes only the currencies whose ratio changed.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileReport, error) {
	ctx, span := otel.Tracer("price-aggregator/application").Start(ctx, "reconcile")
	defer span.End()

	rep := ReconcileReport{ByTier: map[domain.PriceTier]int{}}
	all, err := r.currencies.Search(ctx, CurrencyFilter{Types: []domain.CurrencyType{domain.TypeCrypto, domain.TypeFiat}}, catalogLimit, 0)
	if err != nil {
		return rep, fmt.Errorf("%w: load currencies: %v", domain.ErrStore, err)
	}

	var cryptoSyms, oracleSyms []string
	for _, c := range all {
		sym := strings.ToUpper(c.Ticker)
		if c.Type == domain.TypeCrypto {
			cryptoSyms = append(cryptoSyms, sym)
		}
		if c.Type == domain.TypeFiat || r.cfg.OracleForCrypto {
			oracleSyms = append(oracleSyms, sym)
		}
	}

	var oracle, live, listing map[string]domain.Quote
	var g errgroup.Group
	g.Go(func() error { oracle = r.fetch(ctx, r.oracle, oracleSyms); return nil })
	g.Go(func() error { live = r.fetch(ctx, r.live, cryptoSyms); return nil })
	g.Go(func() error { listing = r.fetch(ctx, r.listing, cryptoSyms); return nil })
	_ = g.Wait()

	rules := r.Rules(oracle, live, listing)
	updated := make(map[string]domain.Currency)
	for _, c := range all {
		if strings.EqualFold(c.Ticker, r.cfg.ReferenceTicker) {
			continue
		}
		rep.Considered++
		res := Resolve(c, rules)
		if res.Tier == domain.TierStored || res.Quote.RatioOfExchange == c.RatioOfExchange {
			rep.Unchanged++
			continue
		}
		rep.ByTier[res.Tier]++
		updated[c.ID] = c.WithLivePrice(res)
	}
	rep.Updated = len(updated)
	span.SetAttributes(attribute.Int("currencies", rep.Considered), attribute.Int("updated", rep.Updated))

	if len(updated) > 0 {
		if err := r.currencies.SetAll(ctx, updated, false); err != nil {
			return rep, fmt.Errorf("%w: save currencies: %v", domain.ErrStore, err)
		}
	}
	r.log.Info("reconcile.updated",
		zap.Int("considered", rep.Considered),
		zap.Int("updated", rep.Updated),
		zap.Int("oracle", rep.ByTier[domain.TierOracle]),
		zap.Int("live_crypto", rep.ByTier[domain.TierLiveCrypto]),
		zap.Int("listing", rep.ByTier[domain.TierListing]),
	)
	return rep, nil
}

// fetch never fails the pass: a source error leaves its tier empty.
func (r *Reconciler) fetch(ctx context.Context, src LiveSource, symbols []string) map[string]domain.Quote {
	if src == nil || len(symbols) == 0 {
		return nil
	}
	ctx, span := otel.Tracer("price-aggregator/application").Start(ctx, "fetch_live")
	defer span.End()
	span.SetAttributes(attribute.String("source", src.Name()), attribute.Int("symbols", len(symbols)))

	quotes, err := src.FetchLive(ctx, symbols)
	if err != nil {
		span.RecordError(err)
		log := r.log.With(zap.String("source", src.Name()))
		if domain.Classify(err) == domain.OutcomeQuotaExceeded {
			log.Warn("reconcile.quota_exceeded", zap.Error(err))
			return nil
		}
		id := r.incidents.Report(ctx, "[UpdateLatest]", src.Name()+": fetch live quotes", err)
		log.Error("reconcile.fetch_failed", zap.String("incident_id", id), zap.Error(err))
		return nil
	}
	return quotes
}
