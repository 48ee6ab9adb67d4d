package inventory

import (
	"fmt"
	"sort"
)

// SortFEFO orders lots by expiration date, oldest first, breaking ties by lot
// id. The allocator and GroupByProduct share this order.
func SortFEFO(lots []Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		if !a.ExpirationDate.Equal(b.ExpirationDate) {
			return a.ExpirationDate.Before(b.ExpirationDate)
		}
		return a.ID < b.ID
	})
}

// Allocate distributes requested units of productCode over the lots that
// expire first. Either the returned allocations sum to requested exactly or
// an error is returned and nothing is allocated. The input slice is not
// modified.
func Allocate(lots []Lot, productCode string, requested int) ([]Allocation, error) {
	if requested <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, requested)
	}

	known := false
	candidates := make([]Lot, 0, len(lots))
	for _, l := range lots {
		if l.ProductCode != productCode {
			continue
		}
		known = true
		if l.AvailableQuantity > 0 {
			candidates = append(candidates, l)
		}
	}
	if !known {
		return nil, &InsufficientStockError{
			ProductCode: productCode,
			Requested:   requested,
			Shortfall:   requested,
			Unknown:     true,
		}
	}

	SortFEFO(candidates)

	remaining := requested
	allocations := make([]Allocation, 0, len(candidates))
	for _, l := range candidates {
		if remaining == 0 {
			break
		}
		take := min(remaining, l.AvailableQuantity)
		allocations = append(allocations, Allocation{
			LotID:          l.ID,
			Batch:          l.Batch,
			ExpirationDate: l.ExpirationDate,
			Quantity:       take,
			UnitPrice:      l.UnitPrice,
		})
		remaining -= take
	}

	if remaining > 0 {
		return nil, &InsufficientStockError{
			ProductCode: productCode,
			Requested:   requested,
			Available:   requested - remaining,
			Shortfall:   remaining,
		}
	}
	return allocations, nil
}

// GroupByProduct returns one group per product code, sorted by code, with the
// lots in FEFO order. Lots without available units are left out.
func GroupByProduct(lots []Lot) []ProductGroup {
	index := make(map[string]int)
	var groups []ProductGroup
	for _, l := range lots {
		if l.AvailableQuantity <= 0 {
			continue
		}
		i, ok := index[l.ProductCode]
		if !ok {
			i = len(groups)
			index[l.ProductCode] = i
			groups = append(groups, ProductGroup{ProductCode: l.ProductCode})
		}
		g := &groups[i]
		if g.ProductName == "" {
			g.ProductName = l.ProductName
		}
		g.TotalAvailable += l.AvailableQuantity
		g.Lots = append(g.Lots, l)
	}

	for i := range groups {
		SortFEFO(groups[i].Lots)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].ProductCode < groups[j].ProductCode
	})
	return groups
}
