// Package summary is the single entry point every call site (cart sidebar, checkout,
// order drawer, printed invoice, admin order detail) uses to price a record.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-pricing/internal/cache"
	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/resilience"
)

// ErrOrdersUnavailable is returned by SummarizeOrder when no OrderSource is configured
// or the order store is failing fast.
var ErrOrdersUnavailable = errors.New("order lookups not configured")

// OrderSource loads a persisted order as a raw record.
type OrderSource interface {
	Load(ctx context.Context, id string) (pricing.Record, error)
}

// Group is a deal group with the free-unit allocation already resolved.
type Group struct {
	pricing.DealGroup
	FreeUnits []pricing.FreeUnit `json:"freeUnits,omitempty"`
}

// Summary is everything a price-summary or line-item renderer needs.
type Summary struct {
	OrderID     string         `json:"orderId,omitempty"`
	Totals      pricing.Totals `json:"totals"`
	Groups      []Group        `json:"groups"`
	ItemCount   int            `json:"itemCount"`
	Synthesized bool           `json:"synthesizedDiscount,omitempty"`
}

// Config wires Service dependencies. Every field is optional.
type Config struct {
	Orders  OrderSource
	Cache   *cache.JSON
	Metrics *obs.PricingMetrics
	Logger  zerolog.Logger

	// OrderBreaker, when set, guards every OrderSource call.
	OrderBreaker *resilience.Breaker
}

// Service prices raw records. It holds no per-call state and is safe for concurrent use.
type Service struct {
	orders  OrderSource
	breaker *resilience.Breaker
	cache   *cache.JSON
	metrics *obs.PricingMetrics
	log     zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg Config) *Service {
	return &Service{
		orders:  cfg.Orders,
		breaker: cfg.OrderBreaker,
		cache:   cfg.Cache,
		metrics: cfg.Metrics,
		log:     cfg.Logger.With().Str("component", "pricing_summary").Logger(),
	}
}

// Summarize prices a raw record. Malformed records never fail; they degrade to zero
// savings. The error is only non-nil when ctx is done.
func (s *Service) Summarize(ctx context.Context, source string, raw pricing.Record) (Summary, error) {
	ctx, span := otel.Tracer("pricing.summary").Start(ctx, "summary.Summarize")
	defer span.End()
	span.SetAttributes(attribute.String("pricing.source", source))

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Summary{}, err
	}

	key := cacheKey(source, raw)
	if key != "" && s.cache.Enabled() {
		var cached Summary
		found, err := s.cache.Get(ctx, key, &cached)
		switch {
		case err != nil:
			s.countCache("error")
			s.log.Warn().Err(err).Str("source", source).Msg("read summary cache")
		case found:
			s.countCache("hit")
			s.countSummary(source, "cached")
			span.SetAttributes(attribute.Bool("pricing.cache_hit", true))
			return cached, nil
		default:
			s.countCache("miss")
		}
	}

	start := time.Now()
	out := Build(raw)
	if s.metrics != nil {
		s.metrics.SummaryMillis.Observe(obs.DurationMillis(time.Since(start)))
		if out.Synthesized {
			s.metrics.Synthesized.Inc()
		}
		if out.ItemCount == 0 {
			s.metrics.EmptyRecords.Inc()
		}
	}
	if out.ItemCount == 0 {
		s.log.Debug().Str("source", source).Str("order_id", out.OrderID).Msg("record has no line items")
	}
	s.countSummary(source, "computed")
	span.SetAttributes(
		attribute.Int("pricing.items", out.ItemCount),
		attribute.Int("pricing.groups", len(out.Groups)),
		attribute.Bool("pricing.synthesized_discount", out.Synthesized),
	)

	if key != "" && s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, out); err != nil {
			s.log.Warn().Err(err).Str("source", source).Msg("write summary cache")
		}
	}
	return out, nil
}

// SummarizeOrder loads a persisted order and prices it.
func (s *Service) SummarizeOrder(ctx context.Context, id string) (Summary, error) {
	if s.orders == nil {
		return Summary{}, ErrOrdersUnavailable
	}
	var raw pricing.Record
	load := func(ctx context.Context) error {
		var err error
		raw, err = s.orders.Load(ctx, id)
		return err
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Do(ctx, load)
	} else {
		err = load(ctx)
	}
	if errors.Is(err, resilience.ErrOpenCircuit) {
		s.countSummary(SourceOrderDetail, "rejected")
		return Summary{}, fmt.Errorf("%w: %w", ErrOrdersUnavailable, err)
	}
	if err != nil {
		s.countSummary(SourceOrderDetail, "load_error")
		return Summary{}, fmt.Errorf("load order %s: %w", id, err)
	}
	return s.Summarize(ctx, SourceOrderDetail, raw)
}

// Groups returns only the deal groups of a record, for line-item tables.
func (s *Service) Groups(raw pricing.Record) []Group {
	in := pricing.Normalize(raw)
	return buildGroups(in)
}

// Build runs the engine without caching or instrumentation.
func Build(raw pricing.Record) Summary {
	in := pricing.Normalize(raw)
	return Summary{
		OrderID:     in.OrderID,
		Totals:      pricing.ComputeTotals(in),
		Groups:      buildGroups(in),
		ItemCount:   len(in.Items),
		Synthesized: in.Synthesized,
	}
}

func buildGroups(in pricing.Input) []Group {
	dealGroups := pricing.GroupItems(in.Items, in.Discounts)
	groups := make([]Group, 0, len(dealGroups))
	for _, g := range dealGroups {
		group := Group{DealGroup: g}
		if g.Kind == pricing.GroupGenericBxgy {
			group.FreeUnits = pricing.AllocateFreeUnits(g)
		}
		groups = append(groups, group)
	}
	return groups
}

// cacheKey hashes the record's canonical JSON. encoding/json sorts map keys, so equal
// records produce equal keys.
func cacheKey(source string, raw pricing.Record) string {
	data, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return source + ":" + common.Sha256Hex(data)
}

func (s *Service) countCache(result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (s *Service) countSummary(source, result string) {
	if s.metrics != nil {
		s.metrics.Summaries.WithLabelValues(source, result).Inc()
	}
}
