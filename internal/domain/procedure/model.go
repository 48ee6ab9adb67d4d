package procedure

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCreated   Status = "criada"
	StatusScheduled Status = "agendada"
	StatusApproved  Status = "aprovada"
	StatusCompleted Status = "concluida"
	StatusRejected  Status = "reprovada"
	StatusCancelled Status = "cancelada"
)

var statuses = []Status{
	StatusCreated, StatusScheduled, StatusApproved,
	StatusCompleted, StatusRejected, StatusCancelled,
}

func (s Status) Valid() bool {
	for _, v := range statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Procedure is a request for products on behalf of a patient. Its items are
// the lot allocations made when the procedure was created.
type Procedure struct {
	ID            uuid.UUID      `json:"id"`
	PatientCode   string         `json:"patient_code"`
	PatientName   string         `json:"patient_name"`
	// PatientID is set when the code belongs to a registered patient.
	PatientID     *uuid.UUID     `json:"patient_id,omitempty"`
	ScheduledFor  time.Time      `json:"scheduled_for"`
	Status        Status         `json:"status"`
	Notes         string         `json:"notes,omitempty"`
	Items         []Item         `json:"items"`
	History       []StatusChange `json:"status_history"`
	CreatedBy     string         `json:"created_by"`
	CreatedByName string         `json:"created_by_name,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Item is one allocation: units of a product drawn from a single lot.
type Item struct {
	ID             uuid.UUID       `json:"id"`
	LotID          uuid.UUID       `json:"lot_id"`
	ProductCode    string          `json:"product_code"`
	ProductName    string          `json:"product_name"`
	Batch          string          `json:"batch"`
	ExpirationDate time.Time       `json:"expiration_date"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

type StatusChange struct {
	Status        Status    `json:"status"`
	ChangedBy     string    `json:"changed_by"`
	ChangedByName string    `json:"changed_by_name,omitempty"`
	ChangedAt     time.Time `json:"changed_at"`
	Note          string    `json:"note,omitempty"`
}

func (p *Procedure) TotalUnits() int {
	n := 0
	for _, it := range p.Items {
		n += it.Quantity
	}
	return n
}

func (p *Procedure) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, it := range p.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// Stats counts procedures per status.
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
}
