// Package report aggregates consumed stock and stock on hand into the
// clinic's consumption and stock value reports.
package report

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConsumedStatuses are the procedure statuses whose items left the shelf.
var ConsumedStatuses = []string{"aprovada", "concluida"}

// ConsumptionRow is one allocation of a procedure that consumed stock.
type ConsumptionRow struct {
	ProcedureID  uuid.UUID
	PatientCode  string
	PatientName  string
	ScheduledFor time.Time
	Status       string
	ProductCode  string
	ProductName  string
	Quantity     int
	UnitPrice    decimal.Decimal
}

func (r ConsumptionRow) value() decimal.Decimal {
	return r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// StockRow is one active lot with units on hand.
type StockRow struct {
	ProductCode    string
	ProductName    string
	QuantityOnHand int
	UnitPrice      decimal.Decimal
}

// Filter narrows the consumption rows. Zero dates leave that end open.
type Filter struct {
	From        time.Time
	To          time.Time
	PatientCode string
}

type Period struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

type ProductConsumption struct {
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	Units       int             `json:"units"`
	Value       decimal.Decimal `json:"value"`
	Procedures  int             `json:"procedures"`
}

type PatientConsumption struct {
	PatientCode string          `json:"patient_code"`
	PatientName string          `json:"patient_name"`
	Procedures  int             `json:"procedures"`
	Units       int             `json:"units"`
	Value       decimal.Decimal `json:"value"`
}

type ConsumptionReport struct {
	Period      Period                `json:"period"`
	Procedures  int                   `json:"procedures"`
	Units       int                   `json:"units"`
	Value       decimal.Decimal       `json:"value"`
	ByProduct   []*ProductConsumption `json:"by_product"`
	ByPatient   []*PatientConsumption `json:"by_patient"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// Line is one product of a procedure, lots merged.
type Line struct {
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Value       decimal.Decimal `json:"value"`
}

type ProcedureConsumption struct {
	ProcedureID  uuid.UUID       `json:"procedure_id"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	Status       string          `json:"status"`
	Lines        []*Line         `json:"products"`
	Value        decimal.Decimal `json:"value"`
}

type PatientReport struct {
	PatientCode string                  `json:"patient_code"`
	PatientName string                  `json:"patient_name"`
	Period      Period                  `json:"period"`
	Units       int                     `json:"units"`
	Value       decimal.Decimal         `json:"value"`
	Procedures  []*ProcedureConsumption `json:"procedures"`
	GeneratedAt time.Time               `json:"generated_at"`
}

type ProductValue struct {
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	Lots        int             `json:"lots"`
	Units       int             `json:"units"`
	Value       decimal.Decimal `json:"value"`
}

type StockValueReport struct {
	Products    int             `json:"products"`
	Units       int             `json:"units"`
	Value       decimal.Decimal `json:"value"`
	ByProduct   []*ProductValue `json:"by_product"`
	GeneratedAt time.Time       `json:"generated_at"`
}
