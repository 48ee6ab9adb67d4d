package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lot is the allocator's view of one batch of a product: a single expiration
// date and a single counter of units that can still be handed out.
type Lot struct {
	ID                string          `json:"id"`
	ProductCode       string          `json:"product_code"`
	ProductName       string          `json:"product_name,omitempty"`
	Batch             string          `json:"batch,omitempty"`
	ExpirationDate    time.Time       `json:"expiration_date"`
	AvailableQuantity int             `json:"available_quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
}

// Allocation is the number of units drawn from one lot.
type Allocation struct {
	LotID          string          `json:"lot_id"`
	Batch          string          `json:"batch,omitempty"`
	ExpirationDate time.Time       `json:"expiration_date"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

type ProductGroup struct {
	ProductCode    string `json:"product_code"`
	ProductName    string `json:"product_name"`
	TotalAvailable int    `json:"total_available"`
	Lots           []Lot  `json:"lots"`
}

// Item is a persisted lot. Units on hand include the reserved ones; only
// QuantityOnHand - QuantityReserved can be allocated.
type Item struct {
	ID               uuid.UUID       `json:"id"`
	ProductCode      string          `json:"product_code"`
	ProductName      string          `json:"product_name"`
	Batch            string          `json:"batch"`
	InitialQuantity  int             `json:"initial_quantity"`
	QuantityOnHand   int             `json:"quantity_on_hand"`
	QuantityReserved int             `json:"quantity_reserved"`
	ExpirationDate   time.Time       `json:"expiration_date"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	InvoiceID        *uuid.UUID      `json:"invoice_id,omitempty"`
	InvoiceNumber    *string         `json:"invoice_number,omitempty"`
	Active           bool            `json:"active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (i *Item) Available() int {
	if n := i.QuantityOnHand - i.QuantityReserved; n > 0 {
		return n
	}
	return 0
}

// Lot projects the item into the allocator input. Inactive items expose no
// stock.
func (i *Item) Lot() Lot {
	avail := i.Available()
	if !i.Active {
		avail = 0
	}
	return Lot{
		ID:                i.ID.String(),
		ProductCode:       i.ProductCode,
		ProductName:       i.ProductName,
		Batch:             i.Batch,
		ExpirationDate:    i.ExpirationDate,
		AvailableQuantity: avail,
		UnitPrice:         i.UnitPrice,
	}
}

// Value is the stock value of the units on hand.
func (i *Item) Value() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.QuantityOnHand)))
}

func Lots(items []*Item) []Lot {
	lots := make([]Lot, 0, len(items))
	for _, it := range items {
		lots = append(lots, it.Lot())
	}
	return lots
}

type ActivityType string

const (
	ActivityIntake      ActivityType = "entrada"
	ActivityConsumption ActivityType = "saida"
	ActivityReservation ActivityType = "reserva"
	ActivityRelease     ActivityType = "liberacao"
	ActivityReturn      ActivityType = "devolucao"
	ActivityAdjustment  ActivityType = "ajuste"
)

// Activity is one stock movement. QuantityBefore and QuantityAfter track the
// reserved counter for reservations and releases and the on-hand counter for
// every other type.
type Activity struct {
	ID             uuid.UUID    `json:"id"`
	ItemID         uuid.UUID    `json:"item_id"`
	ProductCode    string       `json:"product_code"`
	ProductName    string       `json:"product_name"`
	Type           ActivityType `json:"type"`
	Quantity       int          `json:"quantity"`
	QuantityBefore int          `json:"quantity_before"`
	QuantityAfter  int          `json:"quantity_after"`
	Description    string       `json:"description"`
	ProcedureID    *uuid.UUID   `json:"procedure_id,omitempty"`
	InvoiceID      *uuid.UUID   `json:"invoice_id,omitempty"`
	UserID         string       `json:"user_id"`
	UserName       string       `json:"user_name,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

type Stats struct {
	TotalLots     int             `json:"total_lots"`
	TotalProducts int             `json:"total_products"`
	TotalUnits    int             `json:"total_units"`
	ReservedUnits int             `json:"reserved_units"`
	TotalValue    decimal.Decimal `json:"total_value"`
	ExpiringSoon  int             `json:"expiring_soon"`
	Expired       int             `json:"expired"`
	LowStock      int             `json:"low_stock"`
}

type ExpiringLot struct {
	Item         *Item `json:"item"`
	DaysToExpire int   `json:"days_to_expire"`
}
