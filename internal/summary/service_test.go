package summary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/cache"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/repo"
	"github.com/noah-isme/toko-pricing/internal/resilience"
)

type stubOrders struct {
	records map[string]pricing.Record
	err     error
}

func (s stubOrders) Load(_ context.Context, id string) (pricing.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, repo.ErrOrderNotFound
	}
	return rec, nil
}

func sampleOrder() pricing.Record {
	return pricing.Record{
		"id":             "ord-100",
		"subtotalAmount": 35,
		"discountAmount": 5,
		"shippingAmount": 4,
		"taxAmount":      0,
		"totalAmount":    34,
		"items": []any{
			map[string]any{"id": "a", "productId": "pa", "quantity": 3, "unitPrice": 10, "totalPrice": 30},
			map[string]any{"id": "b", "productId": "pb", "quantity": 2, "unitPrice": 5, "totalPrice": 10},
			map[string]any{"id": "c", "productId": "pc", "quantity": 1, "unitPrice": 0, "totalPrice": 0, "referencePrice": 5},
		},
		"appliedDiscounts": []any{
			map[string]any{"id": "deal", "amount": 0, "name": "Buy 2 Get 1", "type": "deal", "targetProductIds": []any{"pa", "pb"},
				"metadata": map[string]any{"kind": "deal", "offerKind": "bxgy_generic", "bxgy": map[string]any{"buyQty": 2, "getQty": 1}}},
			map[string]any{"id": "cpn", "amount": 5, "code": "FIVE"},
		},
	}
}

func newService(t *testing.T, withCache bool) (*Service, *obs.PricingMetrics, *miniredis.Miniredis) {
	t.Helper()
	metrics := obs.NewPricingMetrics("test", prometheus.NewRegistry())
	cfg := Config{
		Orders:  stubOrders{records: map[string]pricing.Record{"ord-100": sampleOrder()}},
		Metrics: metrics,
		Logger:  zerolog.Nop(),
	}
	var mr *miniredis.Miniredis
	if withCache {
		mr = miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		cfg.Cache = cache.New(client, "pricing:", time.Minute)
	}
	return NewService(cfg), metrics, mr
}

func TestSummarizeCombinesTotalsAndGroups(t *testing.T) {
	svc, metrics, _ := newService(t, false)
	out, err := svc.Summarize(context.Background(), SourceCart, sampleOrder())
	require.NoError(t, err)

	require.Equal(t, "ord-100", out.OrderID)
	require.Equal(t, 3, out.ItemCount)
	require.Equal(t, "5", out.Totals.CouponDiscount.String())
	require.Equal(t, "5", out.Totals.PromotionSavings.String())
	require.Equal(t, "40", out.Totals.DisplaySubtotal.String())
	require.Equal(t, "44", out.Totals.TotalBeforeDiscounts.String())
	require.Equal(t, []string{"Buy 2 Get 1"}, out.Totals.PromotionNames)

	require.Len(t, out.Groups, 2)
	deal := out.Groups[0]
	require.Equal(t, pricing.GroupGenericBxgy, deal.Kind)
	require.Equal(t, []pricing.FreeUnit{{ItemID: "a", Quantity: 0}, {ItemID: "b", Quantity: 1}}, deal.FreeUnits)
	require.Equal(t, pricing.GroupSingle, out.Groups[1].Kind)
	require.Nil(t, out.Groups[1].FreeUnits)

	require.Equal(t, float64(1), testutil.ToFloat64(metrics.Summaries.WithLabelValues(SourceCart, "computed")))
}

func TestSummarizeUsesCache(t *testing.T) {
	svc, metrics, mr := newService(t, true)
	ctx := context.Background()

	first, err := svc.Summarize(ctx, SourceInvoice, sampleOrder())
	require.NoError(t, err)
	require.Len(t, mr.Keys(), 1)

	second, err := svc.Summarize(ctx, SourceInvoice, sampleOrder())
	require.NoError(t, err)
	require.True(t, first.Totals.TotalAfterDiscounts.Equal(second.Totals.TotalAfterDiscounts))
	require.True(t, first.Totals.DisplaySubtotal.Equal(second.Totals.DisplaySubtotal))
	require.Equal(t, first.Groups[0].FreeUnits, second.Groups[0].FreeUnits)

	require.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("miss")))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("hit")))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.Summaries.WithLabelValues(SourceInvoice, "cached")))
}

func TestSummarizeIgnoresBrokenCache(t *testing.T) {
	svc, metrics, mr := newService(t, true)
	mr.Close()

	out, err := svc.Summarize(context.Background(), SourceCheckout, sampleOrder())
	require.NoError(t, err)
	require.Equal(t, 3, out.ItemCount)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("error")))
}

func TestSummarizeDegradesOnGarbage(t *testing.T) {
	svc, metrics, _ := newService(t, false)
	out, err := svc.Summarize(context.Background(), SourceCart, pricing.Record{"items": "nope", "totalAmount": "??", "discountAmount": 3})
	require.NoError(t, err)
	require.Zero(t, out.ItemCount)
	require.True(t, out.Synthesized)
	require.True(t, out.Totals.Residual().IsZero())
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.EmptyRecords))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.Synthesized))
}

func TestSummarizeHonoursCancelledContext(t *testing.T) {
	svc, _, _ := newService(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Summarize(ctx, SourceCart, sampleOrder())
	require.ErrorIs(t, err, context.Canceled)
}

func TestSummarizeOrder(t *testing.T) {
	svc, _, _ := newService(t, false)
	out, err := svc.SummarizeOrder(context.Background(), "ord-100")
	require.NoError(t, err)
	require.Equal(t, "ord-100", out.OrderID)

	_, err = svc.SummarizeOrder(context.Background(), "missing")
	require.ErrorIs(t, err, repo.ErrOrderNotFound)

	failing := NewService(Config{Orders: stubOrders{err: errors.New("db down")}})
	_, err = failing.SummarizeOrder(context.Background(), "ord-100")
	require.ErrorContains(t, err, "db down")

	_, err = NewService(Config{}).SummarizeOrder(context.Background(), "ord-100")
	require.ErrorIs(t, err, ErrOrdersUnavailable)
}

func TestSummarizeConcurrentCallersAgree(t *testing.T) {
	svc, _, _ := newService(t, false)
	want := Build(sampleOrder())

	var wg sync.WaitGroup
	results := make([]Summary, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := svc.Summarize(context.Background(), SourceOrderDrawer, sampleOrder())
			if err == nil {
				results[i] = out
			}
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		require.Equal(t, want, got)
	}
}

func TestSummarizeOrderFailsFastWhenBreakerOpens(t *testing.T) {
	breaker := resilience.NewBreaker(resilience.Options{
		Target:      "orders",
		MinRequests: 2,
		OpenFor:     time.Hour,
		IsFailure:   repo.IsStoreFailure,
	})
	svc := NewService(Config{Orders: stubOrders{err: errors.New("db down")}, OrderBreaker: breaker})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.SummarizeOrder(ctx, "ord-100")
		require.ErrorContains(t, err, "db down")
	}
	_, err := svc.SummarizeOrder(ctx, "ord-100")
	require.ErrorIs(t, err, ErrOrdersUnavailable)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
}

func TestSummarizeOrderMissingOrdersDoNotTripBreaker(t *testing.T) {
	breaker := resilience.NewBreaker(resilience.Options{MinRequests: 1, IsFailure: repo.IsStoreFailure})
	svc := NewService(Config{Orders: stubOrders{}, OrderBreaker: breaker})

	for i := 0; i < 3; i++ {
		_, err := svc.SummarizeOrder(context.Background(), "missing")
		require.ErrorIs(t, err, repo.ErrOrderNotFound)
	}
	require.Equal(t, resilience.Closed, breaker.State())
}
