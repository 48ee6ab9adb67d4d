package patient

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Patient is a registered patient of one clinic. Code is what procedures
// refer to.
type Patient struct {
	ID            uuid.UUID  `json:"id"`
	Code          string     `json:"code"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone,omitempty"`
	Email         string     `json:"email,omitempty"`
	BirthDate     *time.Time `json:"birth_date,omitempty"`
	CPF           string     `json:"cpf,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CreatedByName string     `json:"created_by_name,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Summary is a patient with totals over its procedures. Spent counts only
// procedures whose stock was consumed.
type Summary struct {
	Patient
	Procedures    int             `json:"procedures"`
	LastProcedure *time.Time      `json:"last_procedure,omitempty"`
	Spent         decimal.Decimal `json:"spent"`
}

// Change is one field of an edit, with the values before and after.
type Change struct {
	Field string `json:"field"`
	Old   string `json:"old_value"`
	New   string `json:"new_value"`
}

type EditLog struct {
	ID           uuid.UUID `json:"id"`
	PatientID    uuid.UUID `json:"patient_id"`
	PatientCode  string    `json:"patient_code"`
	Changes      []Change  `json:"changes"`
	EditedBy     string    `json:"edited_by"`
	EditedByName string    `json:"edited_by_name,omitempty"`
	EditedAt     time.Time `json:"edited_at"`
}

// HistoryEntry is one procedure of a patient, most recent first.
type HistoryEntry struct {
	ProcedureID  uuid.UUID       `json:"procedure_id"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	Status       string          `json:"status"`
	Units        int             `json:"units"`
	Value        decimal.Decimal `json:"value"`
}

type Stats struct {
	Total          int `json:"total"`
	NewThisMonth   int `json:"new_this_month"`
	NewLast3Months int `json:"new_last_3_months"`
}

// SearchField narrows a search to one field. FieldAll matches name, code,
// CPF and phone.
type SearchField string

const (
	FieldAll   SearchField = "all"
	FieldCode  SearchField = "code"
	FieldName  SearchField = "name"
	FieldPhone SearchField = "phone"
)

func (f SearchField) Valid() bool {
	switch f {
	case FieldAll, FieldCode, FieldName, FieldPhone:
		return true
	}
	return false
}

const (
	MinSearchTerm      = 2
	DefaultSearchLimit = 10
)

// digits keeps the decimal digits of s, so formatted CPFs and phone numbers
// compare by their numbers.
func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// Matches reports whether p matches term on field. Text matches are
// case-insensitive substrings; CPF and phone match on digits only.
func Matches(p *Patient, term string, field SearchField) bool {
	t := strings.ToLower(strings.TrimSpace(term))
	num := digits(t)
	name := strings.Contains(strings.ToLower(p.Name), t)
	code := strings.Contains(strings.ToLower(p.Code), t)
	phone := num != "" && strings.Contains(digits(p.Phone), num)
	cpf := num != "" && strings.Contains(p.CPF, num)

	switch field {
	case FieldCode:
		return code
	case FieldName:
		return name
	case FieldPhone:
		return phone
	}
	return name || code || phone || cpf
}

// statsWindows returns the start of the current month and the instant three
// months before now, in now's location.
func statsWindows(now time.Time) (monthStart, threeMonthsAgo time.Time) {
	y, m, _ := now.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, now.Location()), now.AddDate(0, -3, 0)
}
