package pricing

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
)

// Record is a raw, loosely-typed order or cart as it arrives from storage or a client.
type Record = map[string]any

// syntheticNamespace seeds ids of discount lines derived from flat discount fields.
var syntheticNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("toko-pricing/synthetic-discount"))

// header is the set of order-level aggregates shared by every record shape.
type header struct {
	subtotal, discount, shipping, tax, total Money
}

// readHeader resolves each aggregate on its own: persisted orders use `*Amount`
// names, carts and legacy orders use bare names, and some records mix both.
func readHeader(raw Record) header {
	return header{
		subtotal: SafeNumber(first(raw, "subtotalAmount", "subtotal")),
		discount: SafeNumber(first(raw, "discountAmount", "discount", "discountTotal")),
		shipping: SafeNumber(first(raw, "shippingAmount", "shipping", "shippingCost")),
		tax:      SafeNumber(first(raw, "taxAmount", "tax")),
		total:    SafeNumber(first(raw, "totalAmount", "total")),
	}
}

// Normalize converts a raw record into the canonical Input. It never fails:
// missing or malformed fields degrade to zero values.
func Normalize(raw Record) Input {
	if raw == nil {
		return Input{Items: []LineItem{}, Discounts: []DiscountLine{}}
	}
	h := readHeader(raw)
	in := Input{
		OrderID:        stringOf(first(raw, "id", "orderId", "cartId", "orderNumber")),
		Items:          normalizeItems(asSlice(first(raw, "items", "orderItems", "lineItems"))),
		Subtotal:       h.subtotal,
		DiscountAmount: h.discount,
		ShippingAmount: h.shipping,
		TaxAmount:      h.tax,
		TotalAmount:    h.total,
	}
	in.Discounts = normalizeDiscounts(asSlice(first(raw, "appliedDiscounts", "orderDiscounts", "discounts")))
	if len(in.Discounts) == 0 && !in.DiscountAmount.IsZero() {
		in.Discounts = []DiscountLine{synthesizeDiscount(in.OrderID, in.DiscountAmount, stringOf(raw["appliedDiscountCode"]))}
		in.Synthesized = true
	}
	return in
}

// synthesizeDiscount builds the single discount line standing in for a flat discount amount.
func synthesizeDiscount(orderID string, amount Money, code string) DiscountLine {
	id := uuid.NewSHA1(syntheticNamespace, []byte(orderID)).String()
	code = strings.TrimSpace(code)
	if code != "" {
		manual := false
		return DiscountLine{ID: id, Amount: amount, Code: code, Name: code, Type: "coupon", Automatic: &manual}
	}
	return DiscountLine{ID: id, Amount: amount, Name: "Discount", Type: "other"}
}

func normalizeItems(rows []any) []LineItem {
	items := make([]LineItem, 0, len(rows))
	for i, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, normalizeItem(m, i))
	}
	return items
}

func normalizeItem(m map[string]any, index int) LineItem {
	variant, _ := m["variant"].(map[string]any)
	product, _ := m["product"].(map[string]any)

	it := LineItem{
		ID:            stringOf(first(m, "id", "itemId")),
		ProductID:     stringOf(first(m, "productId", "product_id")),
		Name:          stringOf(first(m, "name", "productName", "title")),
		Quantity:      SafeInt(first(m, "quantity", "qty")),
		UnitPrice:     SafeNumber(first(m, "unitPrice", "price")),
		TotalPrice:    SafeNumber(first(m, "totalPrice", "total", "subtotal")),
		PromotionName: stringOf(first(m, "promotionName", "promotionLabel")),
		Gift:          boolOf(first(m, "isGift", "gift")),
	}
	if it.ID == "" {
		it.ID = "item-" + strconv.Itoa(index)
	}
	if it.ProductID == "" && product != nil {
		it.ProductID = stringOf(product["id"])
	}
	if it.Name == "" && product != nil {
		it.Name = stringOf(first(product, "name", "title"))
	}

	ref := first(m, "referencePrice", "variantPrice", "productPrice")
	if ref == nil && variant != nil {
		ref = variant["price"]
	}
	if ref == nil && product != nil {
		ref = product["price"]
	}
	if ref == nil {
		it.ReferencePrice = it.UnitPrice
	} else {
		it.ReferencePrice = SafeNumber(ref)
	}

	cmp := first(m, "compareAtPrice", "variantCompareAtPrice", "productCompareAtPrice")
	if cmp == nil && variant != nil {
		cmp = variant["compareAtPrice"]
	}
	if cmp == nil && product != nil {
		cmp = product["compareAtPrice"]
	}
	it.CompareAtPrice = SafeNumber(cmp)
	return it
}

func normalizeDiscounts(rows []any) []DiscountLine {
	out := make([]DiscountLine, 0, len(rows))
	for i, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		d := DiscountLine{
			ID:        stringOf(first(m, "id", "discountId")),
			Amount:    SafeNumber(first(m, "amount", "discountAmount", "value")),
			Code:      stringOf(first(m, "code", "discountCode")),
			Name:      stringOf(first(m, "name", "discountName", "title")),
			Type:      stringOf(first(m, "type", "discountType")),
			Automatic: boolPtrOf(first(m, "isAutomatic", "automatic")),
			Metadata:  decodeMetadata(m["metadata"]),
		}
		if d.ID == "" {
			d.ID = "discount-" + strconv.Itoa(i)
		}
		d.TargetProductIDs = productIDs(m["targetProductIds"])
		if len(d.TargetProductIDs) == 0 && d.Metadata != nil {
			d.TargetProductIDs = d.Metadata.TargetIDs
		}
		d.Kind = resolveKind(d.Metadata)
		out = append(out, d)
	}
	return out
}

// resolveKind maps the free-form kind/offerKind pair onto the closed DiscountKind set.
func resolveKind(md *DiscountMetadata) DiscountKind {
	if md == nil {
		return KindUnknown
	}
	kind := strings.ToLower(strings.TrimSpace(md.Kind))
	offer := strings.ToLower(strings.TrimSpace(md.OfferKind))
	switch {
	case kind == "offer" && offer == "standard":
		return KindStandard
	case kind == "deal" && offer == "bxgy_generic":
		return KindGenericBxgy
	case kind == "deal" && offer == "bxgy_bundle":
		return KindBundleBxgy
	}
	return KindUnknown
}

type rawMetadata struct {
	Kind       string         `mapstructure:"kind"`
	OfferKind  string         `mapstructure:"offerKind"`
	Bxgy       *BxgyRule      `mapstructure:"bxgy"`
	BxgyBundle map[string]any `mapstructure:"bxgyBundle"`
	Targets    any            `mapstructure:"targetProductIds"`
	Label      string         `mapstructure:"offerLabel"`
	Name       string         `mapstructure:"label"`
}

// decodeMetadata accepts either an object or its JSON string encoding. Shapes that
// cannot be decoded yield nil.
func decodeMetadata(v any) *DiscountMetadata {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil
		}
		v = m
	}
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	var raw rawMetadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
		TagName:          "mapstructure",
		MatchName:        strings.EqualFold,
	})
	if err != nil {
		return nil
	}
	// Partially decoded metadata is still useful for labeling.
	_ = dec.Decode(m)

	md := &DiscountMetadata{
		Kind:       raw.Kind,
		OfferKind:  raw.OfferKind,
		Bxgy:       raw.Bxgy,
		TargetIDs:  productIDs(raw.Targets),
		OfferLabel: raw.Label,
	}
	if md.OfferLabel == "" {
		md.OfferLabel = raw.Name
	}
	if raw.BxgyBundle != nil {
		md.BundleBuy = bundleSpecs(raw.BxgyBundle["buy"])
		md.BundleGet = bundleSpecs(raw.BxgyBundle["get"])
	}
	return md
}

// bundleSpecs reads a bundle side given as product id strings, {productId, quantity}
// objects or {productIds: [...]} objects.
func bundleSpecs(v any) []BundleSpec {
	var out []BundleSpec
	for _, entry := range asSlice(v) {
		switch e := entry.(type) {
		case string:
			if id := strings.TrimSpace(e); id != "" {
				out = append(out, BundleSpec{ProductID: id})
			}
		case map[string]any:
			quantity := SafeInt(first(e, "quantity", "qty"))
			if id := stringOf(first(e, "productId", "id")); id != "" {
				out = append(out, BundleSpec{ProductID: id, Quantity: quantity})
			}
			for _, id := range productIDs(e["productIds"]) {
				out = append(out, BundleSpec{ProductID: id, Quantity: quantity})
			}
		}
	}
	return out
}

func productIDs(v any) []string {
	var out []string
	for _, entry := range asSlice(v) {
		if id := stringOf(entry); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// first returns the value of the first key that is present and non-nil.
func first(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []map[string]any:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out
	}
	return nil
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	}
	return ""
}

func boolOf(v any) bool {
	b := boolPtrOf(v)
	return b != nil && *b
}

func boolPtrOf(v any) *bool {
	var out bool
	switch b := v.(type) {
	case bool:
		out = b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return nil
		}
		out = parsed
	default:
		return nil
	}
	return &out
}
