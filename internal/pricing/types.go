package pricing

import "strings"

// LineItem is one purchased unit-group within an order or cart.
type LineItem struct {
	ID            string `json:"id"`
	ProductID     string `json:"productId,omitempty"`
	Name          string `json:"name,omitempty"`
	Quantity      int    `json:"quantity"`
	UnitPrice     Money  `json:"unitPrice"`
	TotalPrice    Money  `json:"totalPrice"`
	PromotionName string `json:"promotionName,omitempty"`
	// ReferencePrice is the unit price without any promotion but after markdowns.
	// The normalizer fills it with UnitPrice when the source record has none.
	ReferencePrice Money `json:"referencePrice"`
	// CompareAtPrice is the pre-markdown list price. Zero means absent.
	CompareAtPrice Money `json:"compareAtPrice"`
	// Gift mirrors the source flag. It is informational; IsGift is authoritative.
	Gift bool `json:"isGift,omitempty"`
}

// IsGift reports whether the item is a promotionally free unit. An item is a gift
// exactly when both its unit and total price are zero.
func IsGift(it LineItem) bool {
	return it.UnitPrice.IsZero() && it.TotalPrice.IsZero()
}

// DiscountKind is the closed set of offer shapes the engine understands.
type DiscountKind string

const (
	KindUnknown     DiscountKind = ""
	KindStandard    DiscountKind = "standard"
	KindBundleBxgy  DiscountKind = "bxgy_bundle"
	KindGenericBxgy DiscountKind = "bxgy_generic"
)

// DiscountClass is the bucket a discount line is attributed to.
type DiscountClass string

const (
	ClassPromotion DiscountClass = "promotion"
	ClassCoupon    DiscountClass = "coupon"
	ClassOther     DiscountClass = "other"
)

// BxgyRule carries the buy/get quantities of a generic deal.
type BxgyRule struct {
	BuyQty int `json:"buyQty"`
	GetQty int `json:"getQty"`
}

// BundleSpec lists the products on one side of a bundle deal.
type BundleSpec struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity,omitempty"`
}

// DiscountMetadata is the decoded form of a discount's metadata object.
type DiscountMetadata struct {
	Kind       string       `json:"kind,omitempty"`
	OfferKind  string       `json:"offerKind,omitempty"`
	Bxgy       *BxgyRule    `json:"bxgy,omitempty"`
	BundleBuy  []BundleSpec `json:"bundleBuy,omitempty"`
	BundleGet  []BundleSpec `json:"bundleGet,omitempty"`
	TargetIDs  []string     `json:"targetProductIds,omitempty"`
	OfferLabel string       `json:"offerLabel,omitempty"`
}

// DiscountLine is one applied discount record attached to an order or cart.
type DiscountLine struct {
	ID     string `json:"id"`
	Amount Money  `json:"amount"`
	Code   string `json:"code,omitempty"`
	Name   string `json:"name,omitempty"`
	Type   string `json:"type,omitempty"`
	// Automatic is nil when the source record did not say.
	Automatic        *bool             `json:"isAutomatic,omitempty"`
	Metadata         *DiscountMetadata `json:"metadata,omitempty"`
	TargetProductIDs []string          `json:"targetProductIds,omitempty"`
	Kind             DiscountKind      `json:"kind,omitempty"`
}

// Class buckets the discount: coupons carry a customer code and are not automatic,
// promotions are automatic or typed as promotion/deal, everything else is other.
func (d DiscountLine) Class() DiscountClass {
	code := strings.TrimSpace(d.Code) != ""
	auto := d.Automatic != nil && *d.Automatic
	if code && !auto {
		return ClassCoupon
	}
	if auto {
		return ClassPromotion
	}
	switch strings.ToLower(strings.TrimSpace(d.Type)) {
	case "promotion", "deal":
		return ClassPromotion
	}
	return ClassOther
}

// Label returns the display name of the discount.
func (d DiscountLine) Label() string {
	if name := strings.TrimSpace(d.Name); name != "" {
		return name
	}
	if d.Metadata != nil {
		if label := strings.TrimSpace(d.Metadata.OfferLabel); label != "" {
			return label
		}
	}
	return strings.TrimSpace(d.Code)
}

// Input is the canonical shape consumed by ComputeTotals.
type Input struct {
	OrderID        string         `json:"orderId,omitempty"`
	Items          []LineItem     `json:"items"`
	Discounts      []DiscountLine `json:"discounts"`
	Subtotal       Money          `json:"subtotal"`
	DiscountAmount Money          `json:"discountAmount"`
	ShippingAmount Money          `json:"shippingAmount"`
	TaxAmount      Money          `json:"taxAmount"`
	TotalAmount    Money          `json:"totalAmount"`
	// Synthesized is set when the discount line was derived from the flat
	// discountAmount field rather than read from the record.
	Synthesized bool `json:"synthesized,omitempty"`
}

// Totals is the reconciled monetary breakdown of an order or cart.
type Totals struct {
	DisplaySubtotal      Money          `json:"displaySubtotal"`
	SaleSavings          Money          `json:"saleSavings"`
	PromotionSavings     Money          `json:"promotionSavings"`
	PromotionNames       []string       `json:"promotionNames"`
	PromotionDiscount    Money          `json:"promotionDiscount"`
	PromotionDiscounts   []DiscountLine `json:"promotionDiscounts"`
	CouponDiscount       Money          `json:"couponDiscount"`
	CouponDiscounts      []DiscountLine `json:"couponDiscounts"`
	OtherDiscount        Money          `json:"otherDiscount"`
	OtherDiscounts       []DiscountLine `json:"otherDiscounts"`
	TotalDiscounts       Money          `json:"totalDiscounts"`
	Shipping             Money          `json:"shipping"`
	Tax                  Money          `json:"tax"`
	TotalBeforeDiscounts Money          `json:"totalBeforeDiscounts"`
	TotalAfterDiscounts  Money          `json:"totalAfterDiscounts"`
}

// Residual returns totalBeforeDiscounts - totalDiscounts - totalAfterDiscounts,
// which is zero for every well-formed result.
func (t Totals) Residual() Money {
	return t.TotalBeforeDiscounts.Sub(t.TotalDiscounts).Sub(t.TotalAfterDiscounts)
}

// GroupKind identifies how a DealGroup was formed.
type GroupKind string

const (
	GroupSingle      GroupKind = "single"
	GroupBundleBxgy  GroupKind = "bxgy_bundle"
	GroupGenericBxgy GroupKind = "bxgy_generic"
)

// DealGroup is a display grouping of line items by the discount that produced them.
type DealGroup struct {
	ID                  string     `json:"id"`
	Kind                GroupKind  `json:"kind"`
	Items               []LineItem `json:"items"`
	Label               string     `json:"label,omitempty"`
	BundleGetProductIDs []string   `json:"bundleGetProductIds,omitempty"`
	GenericBuyQty       int        `json:"genericBuyQty,omitempty"`
	GenericGetQty       int        `json:"genericGetQty,omitempty"`
}

// FreeUnit records how many units of an item display as free in a generic deal.
type FreeUnit struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}
