package pricing

import "strings"

// ComputeTotals reconciles persisted aggregates, line items and discount lines into
// a single breakdown. It is pure: the same input always yields the same output and
// nothing in the input is modified.
//
// The persisted totalAmount is authoritative. Savings are reconstructed around it so
// that totalBeforeDiscounts - totalDiscounts == totalAfterDiscounts holds exactly.
func ComputeTotals(in Input) Totals {
	sale := saleSavings(in.Items)
	promo, itemNames := promotionSavings(in.Items)

	out := Totals{
		SaleSavings:        sale,
		PromotionSavings:   promo,
		PromotionDiscounts: []DiscountLine{},
		CouponDiscounts:    []DiscountLine{},
		OtherDiscounts:     []DiscountLine{},
		PromotionDiscount:  zero,
		CouponDiscount:     zero,
		OtherDiscount:      zero,
	}
	for _, d := range in.Discounts {
		switch d.Class() {
		case ClassPromotion:
			out.PromotionDiscounts = append(out.PromotionDiscounts, d)
			out.PromotionDiscount = out.PromotionDiscount.Add(d.Amount)
		case ClassCoupon:
			out.CouponDiscounts = append(out.CouponDiscounts, d)
			out.CouponDiscount = out.CouponDiscount.Add(d.Amount)
		default:
			out.OtherDiscounts = append(out.OtherDiscounts, d)
			out.OtherDiscount = out.OtherDiscount.Add(d.Amount)
		}
	}
	out.PromotionNames = mergeNames(itemNames, discountNames(out.PromotionDiscounts))

	out.DisplaySubtotal = in.Subtotal.Add(promo).Add(sale)

	itemized := out.PromotionDiscount.Add(out.CouponDiscount).Add(out.OtherDiscount)
	unitemized := nonNegative(in.DiscountAmount.Sub(itemized))
	out.OtherDiscount = nonNegative(unitemized.Add(out.OtherDiscount))

	// Discount lines are already contained in the persisted discountAmount; adding
	// the buckets again would double count.
	out.TotalDiscounts = nonNegative(sale.Add(promo).Add(in.DiscountAmount))

	out.Shipping = in.ShippingAmount
	out.Tax = in.TaxAmount
	out.TotalAfterDiscounts = in.TotalAmount
	out.TotalBeforeDiscounts = out.TotalAfterDiscounts.Add(out.TotalDiscounts)
	return out
}

// saleSavings measures markdowns: compareAtPrice against referencePrice.
func saleSavings(items []LineItem) Money {
	total := zero
	for _, it := range items {
		if it.Quantity <= 0 || IsGift(it) {
			continue
		}
		ref := it.ReferencePrice
		if !ref.IsPositive() || !it.CompareAtPrice.GreaterThan(ref) {
			continue
		}
		total = total.Add(nonNegative(it.CompareAtPrice.Sub(ref)).Mul(qty(it.Quantity)))
	}
	return total
}

// promotionSavings measures line-level promotions against referencePrice. Gifts count
// their whole reference value. Item promotion names are collected in order.
func promotionSavings(items []LineItem) (Money, []string) {
	total := zero
	var names []string
	for _, it := range items {
		ref := it.ReferencePrice
		if it.Quantity <= 0 || !ref.IsPositive() {
			continue
		}
		var saved Money
		switch {
		case IsGift(it):
			saved = ref.Mul(qty(it.Quantity))
		case it.UnitPrice.IsPositive() && it.UnitPrice.LessThan(ref):
			saved = nonNegative(ref.Sub(it.UnitPrice)).Mul(qty(it.Quantity))
		default:
			continue
		}
		total = total.Add(saved)
		if name := strings.TrimSpace(it.PromotionName); name != "" {
			names = append(names, name)
		}
	}
	return total, names
}

// discountNames returns labels of promotion lines that describe a recognised offer.
// Coupons never reach this function.
func discountNames(lines []DiscountLine) []string {
	var names []string
	for _, d := range lines {
		switch d.Kind {
		case KindStandard, KindGenericBxgy, KindBundleBxgy:
			if label := d.Label(); label != "" {
				names = append(names, label)
			}
		}
	}
	return names
}

func mergeNames(lists ...[]string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, list := range lists {
		for _, name := range list {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
