package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice is a supplier invoice (nota fiscal) whose lines enter stock as new
// lots.
type Invoice struct {
	ID            uuid.UUID       `json:"id"`
	Number        string          `json:"number"`
	Supplier      string          `json:"supplier"`
	IssuedAt      time.Time       `json:"issued_at"`
	Lines         []Line          `json:"lines"`
	Total         decimal.Decimal `json:"total"`
	CreatedBy     string          `json:"created_by"`
	CreatedByName string          `json:"created_by_name,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Line is one product on the invoice. ItemID is the lot created for it.
type Line struct {
	ID             uuid.UUID       `json:"id"`
	ItemID         uuid.UUID       `json:"item_id"`
	ProductCode    string          `json:"product_code"`
	ProductName    string          `json:"product_name"`
	Batch          string          `json:"batch"`
	Quantity       int             `json:"quantity"`
	ExpirationDate time.Time       `json:"expiration_date"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

func (l Line) Value() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Value())
	}
	return sum
}
