package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

var (
	// ErrOrderNotFound is returned when no order matches the requested id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidOrderID is returned when the id is not a UUID.
	ErrInvalidOrderID = errors.New("invalid order id")
)

// IsStoreFailure reports whether err means the database misbehaved, as opposed to
// the caller asking for an order that does not exist or cancelling.
func IsStoreFailure(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrInvalidOrderID),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// Querier is the subset of pgxpool.Pool used by OrderRecords.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OrderRecords reads persisted orders and hands them to the pricing engine as raw
// records. Money columns are read as text so no precision is lost on the way.
type OrderRecords struct {
	DB Querier
}

const selectOrderHeader = `
SELECT id::text, subtotal_amount::text, discount_amount::text, shipping_amount::text,
       tax_amount::text, total_amount::text, applied_discount_code
FROM orders
WHERE id = $1`

const selectOrderItems = `
SELECT id::text AS id, product_id::text AS product_id, product_name, quantity,
       unit_price::text AS unit_price, total_price::text AS total_price,
       reference_price::text AS reference_price, compare_at_price::text AS compare_at_price,
       promotion_name, is_gift
FROM order_items
WHERE order_id = $1
ORDER BY position, id`

const selectOrderDiscounts = `
SELECT id::text AS id, amount::text AS amount, code, name, type, is_automatic,
       metadata, target_product_ids
FROM order_discounts
WHERE order_id = $1
ORDER BY position, id`

type orderHeader struct {
	ID                  string
	Subtotal            pgtype.Text
	Discount            pgtype.Text
	Shipping            pgtype.Text
	Tax                 pgtype.Text
	Total               pgtype.Text
	AppliedDiscountCode pgtype.Text
}

type itemRow struct {
	ID             string      `db:"id"`
	ProductID      pgtype.Text `db:"product_id"`
	ProductName    pgtype.Text `db:"product_name"`
	Quantity       int32       `db:"quantity"`
	UnitPrice      pgtype.Text `db:"unit_price"`
	TotalPrice     pgtype.Text `db:"total_price"`
	ReferencePrice pgtype.Text `db:"reference_price"`
	CompareAtPrice pgtype.Text `db:"compare_at_price"`
	PromotionName  pgtype.Text `db:"promotion_name"`
	IsGift         pgtype.Bool `db:"is_gift"`
}

type discountRow struct {
	ID               string      `db:"id"`
	Amount           pgtype.Text `db:"amount"`
	Code             pgtype.Text `db:"code"`
	Name             pgtype.Text `db:"name"`
	Type             pgtype.Text `db:"type"`
	IsAutomatic      pgtype.Bool `db:"is_automatic"`
	Metadata         []byte      `db:"metadata"`
	TargetProductIDs []string    `db:"target_product_ids"`
}

// Load returns the order as an order-shaped pricing.Record.
func (r OrderRecords) Load(ctx context.Context, id string) (pricing.Record, error) {
	if r.DB == nil {
		return nil, errors.New("order records not configured")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrderID, err)
	}
	orderID := pgtype.UUID{Bytes: parsed, Valid: true}

	var h orderHeader
	err = r.DB.QueryRow(ctx, selectOrderHeader, orderID).Scan(
		&h.ID, &h.Subtotal, &h.Discount, &h.Shipping, &h.Tax, &h.Total, &h.AppliedDiscountCode,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("load order header: %w", err)
	}

	rows, err := r.DB.Query(ctx, selectOrderItems, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[itemRow])
	if err != nil {
		return nil, fmt.Errorf("scan order items: %w", err)
	}

	rows, err = r.DB.Query(ctx, selectOrderDiscounts, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order discounts: %w", err)
	}
	discounts, err := pgx.CollectRows(rows, pgx.RowToStructByName[discountRow])
	if err != nil {
		return nil, fmt.Errorf("scan order discounts: %w", err)
	}
	return orderRecord(h, items, discounts), nil
}

// orderRecord assembles rows into the record shape the pricing normalizer reads for
// persisted orders. NULL columns are left out so normalizer fallbacks apply.
func orderRecord(h orderHeader, items []itemRow, discounts []discountRow) pricing.Record {
	rec := pricing.Record{"id": h.ID}
	putText(rec, "subtotalAmount", h.Subtotal)
	putText(rec, "discountAmount", h.Discount)
	putText(rec, "shippingAmount", h.Shipping)
	putText(rec, "taxAmount", h.Tax)
	putText(rec, "totalAmount", h.Total)
	putText(rec, "appliedDiscountCode", h.AppliedDiscountCode)

	itemList := make([]any, 0, len(items))
	for _, it := range items {
		m := map[string]any{"id": it.ID, "quantity": int(it.Quantity)}
		putText(m, "productId", it.ProductID)
		putText(m, "productName", it.ProductName)
		putText(m, "unitPrice", it.UnitPrice)
		putText(m, "totalPrice", it.TotalPrice)
		putText(m, "referencePrice", it.ReferencePrice)
		putText(m, "compareAtPrice", it.CompareAtPrice)
		putText(m, "promotionName", it.PromotionName)
		if it.IsGift.Valid {
			m["isGift"] = it.IsGift.Bool
		}
		itemList = append(itemList, m)
	}
	rec["items"] = itemList

	discountList := make([]any, 0, len(discounts))
	for _, d := range discounts {
		m := map[string]any{"id": d.ID}
		putText(m, "amount", d.Amount)
		putText(m, "code", d.Code)
		putText(m, "name", d.Name)
		putText(m, "type", d.Type)
		if d.IsAutomatic.Valid {
			m["isAutomatic"] = d.IsAutomatic.Bool
		}
		if len(d.Metadata) > 0 {
			m["metadata"] = string(d.Metadata)
		}
		if len(d.TargetProductIDs) > 0 {
			ids := make([]any, len(d.TargetProductIDs))
			for i, id := range d.TargetProductIDs {
				ids[i] = id
			}
			m["targetProductIds"] = ids
		}
		discountList = append(discountList, m)
	}
	rec["orderDiscounts"] = discountList
	return rec
}

func putText(m map[string]any, key string, v pgtype.Text) {
	if v.Valid {
		m[key] = v.String
	}
}
