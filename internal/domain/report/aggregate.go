package report

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func periodOf(f Filter) Period {
	var p Period
	if !f.From.IsZero() {
		from := f.From
		p.From = &from
	}
	if !f.To.IsZero() {
		to := f.To
		p.To = &to
	}
	return p
}

// byValue orders by value descending, then by key so equal values are
// stable.
func byValue(vi, vj decimal.Decimal, ki, kj string) bool {
	if c := vi.Cmp(vj); c != 0 {
		return c > 0
	}
	return ki < kj
}

// Consumption totals rows per product and per patient. A product counts
// each procedure once however many lots it drew from.
func Consumption(f Filter, rows []ConsumptionRow, now time.Time) *ConsumptionReport {
	r := &ConsumptionReport{
		Period:      periodOf(f),
		Value:       decimal.Zero,
		ByProduct:   []*ProductConsumption{},
		ByPatient:   []*PatientConsumption{},
		GeneratedAt: now,
	}

	products := make(map[string]*ProductConsumption)
	patients := make(map[string]*PatientConsumption)
	procedures := make(map[uuid.UUID]bool)
	productProcs := make(map[string]map[uuid.UUID]bool)

	for _, row := range rows {
		v := row.value()
		r.Units += row.Quantity
		r.Value = r.Value.Add(v)

		pc, ok := products[row.ProductCode]
		if !ok {
			pc = &ProductConsumption{ProductCode: row.ProductCode, ProductName: row.ProductName, Value: decimal.Zero}
			products[row.ProductCode] = pc
			productProcs[row.ProductCode] = make(map[uuid.UUID]bool)
			r.ByProduct = append(r.ByProduct, pc)
		}
		pc.Units += row.Quantity
		pc.Value = pc.Value.Add(v)
		if !productProcs[row.ProductCode][row.ProcedureID] {
			productProcs[row.ProductCode][row.ProcedureID] = true
			pc.Procedures++
		}

		pt, ok := patients[row.PatientCode]
		if !ok {
			pt = &PatientConsumption{PatientCode: row.PatientCode, PatientName: row.PatientName, Value: decimal.Zero}
			patients[row.PatientCode] = pt
			r.ByPatient = append(r.ByPatient, pt)
		}
		pt.Units += row.Quantity
		pt.Value = pt.Value.Add(v)
		if !procedures[row.ProcedureID] {
			procedures[row.ProcedureID] = true
			pt.Procedures++
			r.Procedures++
		}
	}

	sort.SliceStable(r.ByProduct, func(i, j int) bool {
		a, b := r.ByProduct[i], r.ByProduct[j]
		return byValue(a.Value, b.Value, a.ProductCode, b.ProductCode)
	})
	sort.SliceStable(r.ByPatient, func(i, j int) bool {
		a, b := r.ByPatient[i], r.ByPatient[j]
		return byValue(a.Value, b.Value, a.PatientCode, b.PatientCode)
	})
	return r
}

// ForPatient groups the rows of one patient by procedure, newest first. The
// name is the one recorded on the most recent procedure unless name is set.
func ForPatient(code, name string, f Filter, rows []ConsumptionRow, now time.Time) *PatientReport {
	r := &PatientReport{
		PatientCode: code,
		PatientName: name,
		Period:      periodOf(f),
		Value:       decimal.Zero,
		Procedures:  []*ProcedureConsumption{},
		GeneratedAt: now,
	}

	procs := make(map[uuid.UUID]*ProcedureConsumption)
	lines := make(map[uuid.UUID]map[string]*Line)
	names := make(map[uuid.UUID]string)
	for _, row := range rows {
		if row.PatientCode != code {
			continue
		}
		pc, ok := procs[row.ProcedureID]
		if !ok {
			pc = &ProcedureConsumption{
				ProcedureID:  row.ProcedureID,
				ScheduledFor: row.ScheduledFor,
				Status:       row.Status,
				Lines:        []*Line{},
				Value:        decimal.Zero,
			}
			procs[row.ProcedureID] = pc
			lines[row.ProcedureID] = make(map[string]*Line)
			names[row.ProcedureID] = row.PatientName
			r.Procedures = append(r.Procedures, pc)
		}
		l, ok := lines[row.ProcedureID][row.ProductCode]
		if !ok {
			l = &Line{ProductCode: row.ProductCode, ProductName: row.ProductName, Value: decimal.Zero}
			lines[row.ProcedureID][row.ProductCode] = l
			pc.Lines = append(pc.Lines, l)
		}
		v := row.value()
		l.Quantity += row.Quantity
		l.Value = l.Value.Add(v)
		pc.Value = pc.Value.Add(v)
		r.Units += row.Quantity
		r.Value = r.Value.Add(v)
	}

	sort.SliceStable(r.Procedures, func(i, j int) bool {
		return r.Procedures[i].ScheduledFor.After(r.Procedures[j].ScheduledFor)
	})
	if r.PatientName == "" && len(r.Procedures) > 0 {
		r.PatientName = names[r.Procedures[0].ProcedureID]
	}
	return r
}

// StockValue values the units on hand of every lot at its own price.
func StockValue(rows []StockRow, now time.Time) *StockValueReport {
	r := &StockValueReport{Value: decimal.Zero, ByProduct: []*ProductValue{}, GeneratedAt: now}
	products := make(map[string]*ProductValue)
	for _, row := range rows {
		v := row.UnitPrice.Mul(decimal.NewFromInt(int64(row.QuantityOnHand)))
		pv, ok := products[row.ProductCode]
		if !ok {
			pv = &ProductValue{ProductCode: row.ProductCode, ProductName: row.ProductName, Value: decimal.Zero}
			products[row.ProductCode] = pv
			r.ByProduct = append(r.ByProduct, pv)
		}
		pv.Lots++
		pv.Units += row.QuantityOnHand
		pv.Value = pv.Value.Add(v)
		r.Units += row.QuantityOnHand
		r.Value = r.Value.Add(v)
	}
	r.Products = len(r.ByProduct)
	sort.SliceStable(r.ByProduct, func(i, j int) bool {
		a, b := r.ByProduct[i], r.ByProduct[j]
		return byValue(a.Value, b.Value, a.ProductCode, b.ProductCode)
	})
	return r
}
