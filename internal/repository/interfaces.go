package repository

import (
	"context"
	"errors"
	"time"

	"github.com/segyhp/payroll-loans/internal/domain"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStaleStatus is returned when an installment update lost the
	// compare-and-swap on its pending status.
	ErrStaleStatus = errors.New("installment is no longer pending")
)

// LoanRepository defines the interface for loan and installment persistence.
// Every mutation is scoped to a single loan and runs in one transaction.
type LoanRepository interface {
	// CreateWithInstallments inserts the loan and all of loan.Installments atomically
	CreateWithInstallments(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan without its installments
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// List returns one page of loans matching the filter and the total match count
	List(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, int, error)

	// Update writes only the fields present in patch plus the audit columns
	Update(ctx context.Context, id uuid.UUID, patch domain.LoanPatch, actor string, now time.Time) error

	// Delete removes the loan and its installments
	Delete(ctx context.Context, id uuid.UUID) error

	// GetInstallmentsByLoanID lists installments ordered by due date
	GetInstallmentsByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.Installment, error)

	// GetInstallmentByID retrieves one installment
	GetInstallmentByID(ctx context.Context, id uuid.UUID) (*domain.Installment, error)

	// ListDueInstallments lists pending installments of active loans due on or before asOf
	ListDueInstallments(ctx context.Context, asOf domain.Date) ([]*domain.Installment, error)

	// ApplyInstallmentTransition writes inst if it is still pending in the store and,
	// when inst is now terminal, closes the owning loan once nothing is pending.
	// It reports whether the loan was closed by this call.
	ApplyInstallmentTransition(ctx context.Context, inst *domain.Installment, actor string) (bool, error)
}

// EmployeeRepository is the read side of the employee directory.
type EmployeeRepository interface {
	// Exists reports whether an active employee with the id exists
	Exists(ctx context.Context, employeeID string) (bool, error)
}
