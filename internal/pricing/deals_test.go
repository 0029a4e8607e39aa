package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func item(t *testing.T, id, product string, quantity int, unit string) LineItem {
	t.Helper()
	price := money(t, unit)
	return LineItem{
		ID:             id,
		ProductID:      product,
		Quantity:       quantity,
		UnitPrice:      price,
		TotalPrice:     price.Mul(qty(quantity)),
		ReferencePrice: price,
	}
}

func itemIDs(items []LineItem) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

func TestAllocateFreeUnitsCheapestFirst(t *testing.T) {
	group := DealGroup{
		Kind:          GroupGenericBxgy,
		GenericBuyQty: 2,
		GenericGetQty: 1,
		Items: []LineItem{
			item(t, "A", "pa", 3, "10"),
			item(t, "B", "pb", 2, "5"),
		},
	}
	require.Equal(t, []FreeUnit{{ItemID: "A", Quantity: 0}, {ItemID: "B", Quantity: 1}}, AllocateFreeUnits(group))
}

func TestAllocateFreeUnitsSpillsAcrossItems(t *testing.T) {
	group := DealGroup{
		Kind:          GroupGenericBxgy,
		GenericBuyQty: 1,
		GenericGetQty: 1,
		Items: []LineItem{
			item(t, "pricey", "p1", 4, "30"),
			item(t, "cheap", "p2", 1, "5"),
			item(t, "mid", "p3", 3, "12"),
		},
	}
	// eight units, four free: cheap takes one, mid three.
	require.Equal(t, []FreeUnit{
		{ItemID: "pricey", Quantity: 0},
		{ItemID: "cheap", Quantity: 1},
		{ItemID: "mid", Quantity: 3},
	}, AllocateFreeUnits(group))
}

func TestAllocateFreeUnitsTiesKeepOrder(t *testing.T) {
	group := DealGroup{
		Kind:          GroupGenericBxgy,
		GenericBuyQty: 2,
		GenericGetQty: 1,
		Items: []LineItem{
			item(t, "first", "p1", 2, "8"),
			item(t, "second", "p2", 2, "8"),
			item(t, "third", "p3", 2, "8"),
		},
	}
	require.Equal(t, []FreeUnit{
		{ItemID: "first", Quantity: 2},
		{ItemID: "second", Quantity: 0},
		{ItemID: "third", Quantity: 0},
	}, AllocateFreeUnits(group))
}

func TestAllocateFreeUnitsPrefersReferencePrice(t *testing.T) {
	gift := LineItem{ID: "gift", ProductID: "p1", Quantity: 1, ReferencePrice: money(t, "20")}
	group := DealGroup{
		Kind:          GroupGenericBxgy,
		GenericBuyQty: 1,
		GenericGetQty: 1,
		Items:         []LineItem{gift, item(t, "paid", "p2", 1, "15")},
	}
	require.Equal(t, []FreeUnit{{ItemID: "gift", Quantity: 0}, {ItemID: "paid", Quantity: 1}}, AllocateFreeUnits(group))
}

func TestAllocateFreeUnitsDegenerateRules(t *testing.T) {
	items := []LineItem{item(t, "a", "p1", 5, "10")}
	for name, g := range map[string]DealGroup{
		"not generic":     {Kind: GroupSingle, GenericBuyQty: 1, GenericGetQty: 1, Items: items},
		"zero get":        {Kind: GroupGenericBxgy, GenericBuyQty: 2, GenericGetQty: 0, Items: items},
		"negative buy":    {Kind: GroupGenericBxgy, GenericBuyQty: -1, GenericGetQty: 1, Items: items},
		"below one cycle": {Kind: GroupGenericBxgy, GenericBuyQty: 5, GenericGetQty: 1, Items: items},
	} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, []FreeUnit{{ItemID: "a"}}, AllocateFreeUnits(g))
		})
	}
}

func TestGroupItems(t *testing.T) {
	items := []LineItem{
		item(t, "shirt", "p-shirt", 1, "25"),
		item(t, "hat", "p-hat", 1, "0"),
		item(t, "sock-a", "p-sock-a", 2, "4"),
		item(t, "sock-b", "p-sock-b", 1, "6"),
		item(t, "mug", "p-mug", 1, "9"),
		item(t, "loose", "", 1, "3"),
	}
	discounts := []DiscountLine{
		{
			ID: "generic", Name: "Socks 2+1", Kind: KindGenericBxgy,
			TargetProductIDs: []string{"p-sock-a", "p-sock-b", "p-shirt"},
			Metadata:         &DiscountMetadata{Kind: "deal", OfferKind: "bxgy_generic", Bxgy: &BxgyRule{BuyQty: 2, GetQty: 1}},
		},
		{ID: "coupon", Code: "OFF5", Amount: money(t, "5")},
		{
			ID: "bundle", Name: "Shirt + Hat", Kind: KindBundleBxgy,
			Metadata: &DiscountMetadata{
				Kind: "deal", OfferKind: "bxgy_bundle",
				BundleBuy: []BundleSpec{{ProductID: "p-shirt"}},
				BundleGet: []BundleSpec{{ProductID: "p-hat"}},
			},
		},
		{
			ID: "empty-bundle", Kind: KindBundleBxgy,
			Metadata: &DiscountMetadata{BundleBuy: []BundleSpec{{ProductID: "p-none"}}},
		},
	}

	groups := GroupItems(items, discounts)
	require.Len(t, groups, 4)

	require.Equal(t, "bundle", groups[0].ID)
	require.Equal(t, GroupBundleBxgy, groups[0].Kind)
	require.Equal(t, "Shirt + Hat", groups[0].Label)
	require.Equal(t, []string{"shirt", "hat"}, itemIDs(groups[0].Items))
	require.Equal(t, []string{"p-hat"}, groups[0].BundleGetProductIDs)

	require.Equal(t, "generic", groups[1].ID)
	require.Equal(t, GroupGenericBxgy, groups[1].Kind)
	require.Equal(t, []string{"sock-a", "sock-b"}, itemIDs(groups[1].Items))
	require.Equal(t, 2, groups[1].GenericBuyQty)
	require.Equal(t, 1, groups[1].GenericGetQty)
	require.Equal(t, []FreeUnit{{ItemID: "sock-a", Quantity: 1}, {ItemID: "sock-b", Quantity: 0}}, AllocateFreeUnits(groups[1]))

	require.Equal(t, GroupSingle, groups[2].Kind)
	require.Equal(t, "mug", groups[2].ID)
	require.Equal(t, GroupSingle, groups[3].Kind)
	require.Equal(t, "loose", groups[3].ID)
}

func TestGroupItemsWithoutDeals(t *testing.T) {
	items := []LineItem{item(t, "a", "p1", 1, "1"), item(t, "b", "p2", 1, "2")}
	groups := GroupItems(items, nil)
	require.Len(t, groups, 2)
	for i, g := range groups {
		require.Equal(t, GroupSingle, g.Kind)
		require.Equal(t, items[i], g.Items[0])
	}
	require.Empty(t, GroupItems(nil, nil))
}
