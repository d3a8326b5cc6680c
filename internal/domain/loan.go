package domain

import (
	"encoding/json"
	"errors"
	"time"

	customError "github.com/segyhp/payroll-loans/pkg/errors"

	"github.com/google/uuid"
)

type LoanStatus string

const (
	LoanStatusActive LoanStatus = "active"
	LoanStatusClosed LoanStatus = "closed"
)

func (s LoanStatus) Valid() bool {
	return s == LoanStatusActive || s == LoanStatusClosed
}

// Currency is the two-member currency enumeration of the payroll system.
type Currency string

const (
	CurrencyLocal   Currency = "local"
	CurrencyForeign Currency = "foreign"
)

func (c Currency) Valid() bool {
	return c == CurrencyLocal || c == CurrencyForeign
}

// Loan represents a loan granted to an employee
type Loan struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	EmployeeID   string         `json:"employee_id" db:"employee_id"`
	Principal    Money          `json:"principal" db:"principal"`
	Currency     Currency       `json:"currency" db:"currency"`
	GrantedAt    Date           `json:"granted_at" db:"granted_at"`
	StartDate    Date           `json:"start_date" db:"start_date"`
	Status       LoanStatus     `json:"status" db:"status"`
	Notes        *string        `json:"notes,omitempty" db:"notes"`
	CreatedBy    string         `json:"created_by" db:"created_by"`
	UpdatedBy    string         `json:"updated_by" db:"updated_by"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
	Installments []*Installment `json:"installments,omitempty" db:"-"`
}

// NewLoanParams carries everything needed to assemble a loan and its plan.
type NewLoanParams struct {
	EmployeeID string
	Principal  Money
	Currency   Currency
	GrantedAt  Date
	StartDate  *Date
	Status     LoanStatus
	Notes      *string
	Schedule   SchedulePolicy

	// Limits bound the resolved plan; the zero value takes the defaults.
	Limits ScheduleLimits
	// MismatchTolerance is how far a custom plan may drift from the
	// principal before the result is flagged.
	MismatchTolerance Money

	Actor string
	Now   time.Time
}

// NewLoanResult is an assembled, not yet persisted, loan.
type NewLoanResult struct {
	Loan             *Loan
	ScheduleMismatch bool
	ScheduledTotal   Money
}

// NewLoan validates the request, resolves the repayment plan and builds the
// loan together with its pending installments, ordered by due date.
func NewLoan(p NewLoanParams) (*NewLoanResult, error) {
	if !p.Principal.IsPositive() {
		return nil, customError.WrapInvalidAmount("principal", "principal must be greater than 0")
	}
	if !p.Currency.Valid() {
		return nil, customError.WrapInvalidCurrency(string(p.Currency))
	}
	if p.GrantedAt.IsZero() {
		return nil, customError.WrapInvalidPayload("granted_at", "granted_at is required")
	}

	status := p.Status
	if status == "" {
		status = LoanStatusActive
	}
	if !status.Valid() {
		return nil, customError.WrapInvalidStatus("status", string(status))
	}

	start := p.GrantedAt
	if p.StartDate != nil && !p.StartDate.IsZero() {
		start = *p.StartDate
	}

	resolution, err := ResolveSchedule(p.Schedule, p.Principal, start, p.Limits)
	if err != nil {
		return nil, err
	}
	SortPlanned(resolution.Installments)

	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	loan := &Loan{
		ID:         uuid.New(),
		EmployeeID: p.EmployeeID,
		Principal:  p.Principal,
		Currency:   p.Currency,
		GrantedAt:  p.GrantedAt,
		StartDate:  start,
		Status:     status,
		Notes:      p.Notes,
		CreatedBy:  p.Actor,
		UpdatedBy:  p.Actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	loan.Installments = make([]*Installment, 0, len(resolution.Installments))
	for _, planned := range resolution.Installments {
		loan.Installments = append(loan.Installments, &Installment{
			ID:        uuid.New(),
			LoanID:    loan.ID,
			DueDate:   planned.DueDate,
			Amount:    planned.Amount,
			Status:    InstallmentStatusPending,
			Source:    InstallmentSourceManual,
			Remarks:   planned.Remarks,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	return &NewLoanResult{
		Loan:             loan,
		ScheduleMismatch: resolution.Custom && resolution.Mismatch(p.Principal) > p.MismatchTolerance,
		ScheduledTotal:   resolution.Total,
	}, nil
}

// StartsBeforeGrant reports the tolerated but suspicious case of deductions
// starting before the loan was issued.
func (l *Loan) StartsBeforeGrant() bool {
	return l.StartDate.Before(l.GrantedAt)
}

// Outstanding is the sum of pending installment amounts.
func (l *Loan) Outstanding() Money {
	var total Money
	for _, inst := range l.Installments {
		if inst.Status == InstallmentStatusPending {
			total += inst.Amount
		}
	}
	return total
}

// LoanPatch is a partial update of the mutable loan fields. Currency and
// principal are fixed at creation.
type LoanPatch struct {
	Notes  *string     `json:"notes,omitempty"`
	Status *LoanStatus `json:"status,omitempty"`
}

// Validate rejects unknown statuses.
func (p LoanPatch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return customError.WrapInvalidStatus("status", string(*p.Status))
	}
	return nil
}

// Empty reports whether the patch names no field.
func (p LoanPatch) Empty() bool {
	return p.Notes == nil && p.Status == nil
}

// LoanFilter selects loans for listing.
type LoanFilter struct {
	EmployeeID string
	Status     LoanStatus
	Page       int
	PerPage    int
}

// Offset returns the row offset of the filter's page.
func (f LoanFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.PerPage
}

// PageMeta describes a page of a listing.
type PageMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

type LoanPage struct {
	Loans []*Loan  `json:"data"`
	Meta  PageMeta `json:"meta"`
}

// DTOs for requests and responses

type CreateLoanRequest struct {
	EmployeeID string          `json:"employee_id" validate:"required"`
	Principal  Money           `json:"principal"`
	Currency   Currency        `json:"currency"`
	GrantedAt  Date            `json:"granted_at" validate:"required"`
	StartDate  *Date           `json:"start_date,omitempty"`
	Status     LoanStatus      `json:"status,omitempty" validate:"omitempty,oneof=active closed"`
	Notes      *string         `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Schedule   ScheduleRequest `json:"schedule"`
}

// UnmarshalJSON decodes the request and names principal on amount errors.
func (r *CreateLoanRequest) UnmarshalJSON(data []byte) error {
	type plain CreateLoanRequest
	aux := struct {
		*plain
		Principal json.RawMessage `json:"principal"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Principal = 0
	if len(aux.Principal) == 0 || string(aux.Principal) == "null" {
		return nil
	}
	if err := json.Unmarshal(aux.Principal, &r.Principal); err != nil {
		var be *customError.BusinessError
		if errors.As(err, &be) {
			return be.WithField("principal")
		}
		return err
	}
	return nil
}

type CreateLoanResponse struct {
	Loan             *Loan `json:"loan"`
	ScheduleMismatch bool  `json:"schedule_mismatch"`
	ScheduledTotal   Money `json:"scheduled_total"`
}

type OutstandingResponse struct {
	LoanID      uuid.UUID `json:"loan_id"`
	Currency    Currency  `json:"currency"`
	Outstanding Money     `json:"outstanding"`
}
