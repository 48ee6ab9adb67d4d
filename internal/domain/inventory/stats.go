package inventory

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultLowStockThreshold = 10
	DefaultExpiryWarningDays = 30
)

// ComputeStats summarizes the lots that still have units on hand.
func ComputeStats(items []*Item, now time.Time, lowStock, warnDays int) Stats {
	st := Stats{TotalValue: decimal.Zero}
	horizon := now.AddDate(0, 0, warnDays)
	products := make(map[string]struct{})

	for _, it := range items {
		if !it.Active || it.QuantityOnHand <= 0 {
			continue
		}
		st.TotalLots++
		st.TotalUnits += it.QuantityOnHand
		st.ReservedUnits += it.QuantityReserved
		st.TotalValue = st.TotalValue.Add(it.Value())
		products[it.ProductCode] = struct{}{}

		switch {
		case it.ExpirationDate.Before(now):
			st.Expired++
		case !it.ExpirationDate.After(horizon):
			st.ExpiringSoon++
		}
		if it.QuantityOnHand < lowStock {
			st.LowStock++
		}
	}
	st.TotalProducts = len(products)
	return st
}

// DaysToExpire rounds up, so a lot expiring later today reports 1.
func DaysToExpire(exp, now time.Time) int {
	return int(math.Ceil(exp.Sub(now).Hours() / 24))
}

// ExpiringWithin returns the lots with units on hand that expire between now
// and now+days, in FEFO order, at most limit of them when limit > 0.
func ExpiringWithin(items []*Item, now time.Time, days, limit int) []ExpiringLot {
	horizon := now.AddDate(0, 0, days)
	var selected []*Item
	for _, it := range items {
		if !it.Active || it.QuantityOnHand <= 0 {
			continue
		}
		if it.ExpirationDate.Before(now) || it.ExpirationDate.After(horizon) {
			continue
		}
		selected = append(selected, it)
	}

	lots := Lots(selected)
	byID := make(map[string]*Item, len(selected))
	for _, it := range selected {
		byID[it.ID.String()] = it
	}
	SortFEFO(lots)

	out := make([]ExpiringLot, 0, len(lots))
	for _, l := range lots {
		if limit > 0 && len(out) == limit {
			break
		}
		it := byID[l.ID]
		out = append(out, ExpiringLot{Item: it, DaysToExpire: DaysToExpire(it.ExpirationDate, now)})
	}
	return out
}
