package domain

import (
	"time"

	customError "github.com/segyhp/payroll-loans/pkg/errors"

	"github.com/google/uuid"
)

type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPaid    InstallmentStatus = "paid"
	InstallmentStatusSkipped InstallmentStatus = "skipped"
)

// Terminal reports whether no further action is accepted in this status.
func (s InstallmentStatus) Terminal() bool {
	return s == InstallmentStatusPaid || s == InstallmentStatusSkipped
}

// InstallmentSource records how an installment is (or will be) settled.
type InstallmentSource string

const (
	InstallmentSourcePayroll InstallmentSource = "payroll"
	InstallmentSourceManual  InstallmentSource = "manual"
)

func (s InstallmentSource) Valid() bool {
	return s == InstallmentSourcePayroll || s == InstallmentSourceManual
}

// Installment is one scheduled repayment of a loan.
type Installment struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	LoanID    uuid.UUID         `json:"loan_id" db:"loan_id"`
	DueDate   Date              `json:"due_date" db:"due_date"`
	Amount    Money             `json:"amount" db:"amount"`
	Status    InstallmentStatus `json:"status" db:"status"`
	Source    InstallmentSource `json:"source" db:"source"`
	Remarks   *string           `json:"remarks,omitempty" db:"remarks"`
	SettledAt *time.Time        `json:"settled_at,omitempty" db:"settled_at"`
	SkippedAt *time.Time        `json:"skipped_at,omitempty" db:"skipped_at"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

type InstallmentAction string

const (
	ActionMarkPaid    InstallmentAction = "mark_paid"
	ActionMarkSkipped InstallmentAction = "mark_skipped"
	ActionReschedule  InstallmentAction = "reschedule"
)

// ActionPayload carries the optional arguments of an installment action.
type ActionPayload struct {
	// Source applies to mark_paid; empty means manual.
	Source InstallmentSource `json:"source,omitempty"`
	// DueDate is required by reschedule.
	DueDate *Date `json:"due_date,omitempty"`
}

type InstallmentActionRequest struct {
	Action InstallmentAction `json:"action" validate:"required,oneof=mark_paid mark_skipped reschedule"`
	ActionPayload
}

// Apply runs one lifecycle action against the installment. Only pending
// installments accept actions; paid and skipped are final. On error the
// installment is left untouched.
func (i *Installment) Apply(action InstallmentAction, payload ActionPayload, now time.Time) error {
	if i.Status != InstallmentStatusPending {
		return customError.WrapInvalidTransition(i.ID.String(), string(action), string(i.Status))
	}

	now = now.UTC()
	switch action {
	case ActionMarkPaid:
		source := payload.Source
		if source == "" {
			source = InstallmentSourceManual
		}
		if !source.Valid() {
			return customError.WrapInvalidPayload("source", "source must be payroll or manual")
		}
		i.Status = InstallmentStatusPaid
		i.Source = source
		i.SettledAt = &now

	case ActionMarkSkipped:
		i.Status = InstallmentStatusSkipped
		i.SkippedAt = &now

	case ActionReschedule:
		if payload.DueDate == nil || payload.DueDate.IsZero() {
			return customError.WrapInvalidPayload("due_date", "due_date is required to reschedule")
		}
		i.DueDate = *payload.DueDate

	default:
		return customError.WrapInvalidPayload("action", "unknown action "+string(action))
	}

	i.UpdatedAt = now
	return nil
}


// InstallmentActionResult is the outcome of one lifecycle action.
type InstallmentActionResult struct {
	Installment *Installment `json:"installment"`
	// LoanClosed is set when this action closed the owning loan.
	LoanClosed bool `json:"loan_closed"`
}

// SettlementReport summarises one payroll settlement run.
type SettlementReport struct {
	RunDate          Date        `json:"run_date"`
	Settled          int         `json:"settled"`
	SettledAmount    Money       `json:"settled_amount"`
	SkippedConflicts int         `json:"skipped_conflicts"`
	ClosedLoans      []uuid.UUID `json:"closed_loans"`
}
