package pricing

import "sort"

// GroupItems partitions line items by the deal that produced them. Bundle deals claim
// items first, then generic deals, in discount order; anything left becomes a single.
// Each item lands in exactly one group.
func GroupItems(items []LineItem, discounts []DiscountLine) []DealGroup {
	claimed := make([]bool, len(items))
	var groups []DealGroup

	for _, d := range discounts {
		if d.Kind != KindBundleBxgy || d.Metadata == nil {
			continue
		}
		members := map[string]struct{}{}
		var getIDs []string
		for _, spec := range d.Metadata.BundleBuy {
			members[spec.ProductID] = struct{}{}
		}
		for _, spec := range d.Metadata.BundleGet {
			members[spec.ProductID] = struct{}{}
			getIDs = append(getIDs, spec.ProductID)
		}
		picked := claim(items, claimed, members)
		if len(picked) == 0 {
			continue
		}
		groups = append(groups, DealGroup{
			ID:                  d.ID,
			Kind:                GroupBundleBxgy,
			Items:               picked,
			Label:               d.Label(),
			BundleGetProductIDs: getIDs,
		})
	}

	for _, d := range discounts {
		if d.Kind != KindGenericBxgy {
			continue
		}
		members := map[string]struct{}{}
		for _, id := range d.TargetProductIDs {
			members[id] = struct{}{}
		}
		picked := claim(items, claimed, members)
		if len(picked) == 0 {
			continue
		}
		group := DealGroup{
			ID:    d.ID,
			Kind:  GroupGenericBxgy,
			Items: picked,
			Label: d.Label(),
		}
		if d.Metadata != nil && d.Metadata.Bxgy != nil {
			group.GenericBuyQty = d.Metadata.Bxgy.BuyQty
			group.GenericGetQty = d.Metadata.Bxgy.GetQty
		}
		groups = append(groups, group)
	}

	for i, it := range items {
		if claimed[i] {
			continue
		}
		groups = append(groups, DealGroup{ID: it.ID, Kind: GroupSingle, Items: []LineItem{it}})
	}
	return groups
}

func claim(items []LineItem, claimed []bool, productIDs map[string]struct{}) []LineItem {
	if len(productIDs) == 0 {
		return nil
	}
	var picked []LineItem
	for i, it := range items {
		if claimed[i] || it.ProductID == "" {
			continue
		}
		if _, ok := productIDs[it.ProductID]; !ok {
			continue
		}
		claimed[i] = true
		picked = append(picked, it)
	}
	return picked
}

// AllocateFreeUnits decides which units of a generic deal display as free. Every
// completed buy+get cycle frees getQty units, handed out to the cheapest items first;
// equal prices keep their original order. The result has one entry per group item.
func AllocateFreeUnits(g DealGroup) []FreeUnit {
	out := make([]FreeUnit, len(g.Items))
	for i, it := range g.Items {
		out[i] = FreeUnit{ItemID: it.ID}
	}
	if g.Kind != GroupGenericBxgy || g.GenericBuyQty < 0 || g.GenericGetQty <= 0 {
		return out
	}
	cycle := g.GenericBuyQty + g.GenericGetQty
	eligible := 0
	for _, it := range g.Items {
		if it.Quantity > 0 {
			eligible += it.Quantity
		}
	}
	remaining := (eligible / cycle) * g.GenericGetQty
	if remaining == 0 {
		return out
	}

	order := make([]int, len(g.Items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return basePrice(g.Items[order[a]]).LessThan(basePrice(g.Items[order[b]]))
	})
	for _, idx := range order {
		if remaining == 0 {
			break
		}
		n := g.Items[idx].Quantity
		if n <= 0 {
			continue
		}
		if n > remaining {
			n = remaining
		}
		out[idx].Quantity = n
		remaining -= n
	}
	return out
}

// basePrice is the unit price used to rank items for free-unit allocation.
func basePrice(it LineItem) Money {
	if it.ReferencePrice.IsPositive() {
		return it.ReferencePrice
	}
	return it.UnitPrice
}
