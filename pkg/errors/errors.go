package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrLoanNotFound        = errors.New("loan not found")
	ErrInstallmentNotFound = errors.New("installment not found")
	ErrEmployeeNotFound    = errors.New("employee not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidSchedule     = errors.New("invalid schedule")
	ErrInvalidCurrency     = errors.New("invalid currency")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrInvalidTransition   = errors.New("invalid installment transition")
	ErrUnauthorized        = errors.New("unauthorized")
)

// Error kinds used by the presentation layer to pick a response class.
const (
	KindValidation = "validation"
	KindState      = "state"
	KindNotFound   = "not_found"
	KindAuth       = "auth"
	KindInternal   = "internal"
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Field   string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithField returns a copy of the error pointing at the offending input field.
func (e *BusinessError) WithField(field string) *BusinessError {
	cp := *e
	cp.Field = field
	return &cp
}

// Error codes
const (
	ErrCodeLoanNotFound        = "LOAN_NOT_FOUND"
	ErrCodeInstallmentNotFound = "INSTALLMENT_NOT_FOUND"
	ErrCodeEmployeeNotFound    = "EMPLOYEE_NOT_FOUND"
	ErrCodeInvalidAmount       = "INVALID_AMOUNT"
	ErrCodeInvalidSchedule     = "INVALID_SCHEDULE"
	ErrCodeInvalidCurrency     = "INVALID_CURRENCY"
	ErrCodeInvalidStatus       = "INVALID_STATUS"
	ErrCodeInvalidPayload      = "INVALID_PAYLOAD"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeDatabaseError       = "DATABASE_ERROR"
	ErrCodeCacheError          = "CACHE_ERROR"
)

// Kind classifies err into one of the Kind* constants.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidSchedule),
		errors.Is(err, ErrInvalidCurrency),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrInvalidPayload):
		return KindValidation
	case errors.Is(err, ErrInvalidTransition):
		return KindState
	case errors.Is(err, ErrLoanNotFound),
		errors.Is(err, ErrInstallmentNotFound),
		errors.Is(err, ErrEmployeeNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindAuth
	default:
		return KindInternal
	}
}

// Wrap common errors with business context
func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapInstallmentNotFound(installmentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeInstallmentNotFound,
		fmt.Sprintf("Installment with ID %s not found", installmentID),
		ErrInstallmentNotFound,
	)
}

func WrapEmployeeNotFound(employeeID string) *BusinessError {
	return NewBusinessError(
		ErrCodeEmployeeNotFound,
		fmt.Sprintf("Employee with ID %s not found", employeeID),
		ErrEmployeeNotFound,
	).WithField("employee_id")
}

func WrapInvalidAmount(field, reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidAmount,
		reason,
		ErrInvalidAmount,
	).WithField(field)
}

func WrapInvalidSchedule(field, reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidSchedule,
		reason,
		ErrInvalidSchedule,
	).WithField(field)
}

func WrapInvalidCurrency(currency string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidCurrency,
		fmt.Sprintf("Currency %q is not supported", currency),
		ErrInvalidCurrency,
	).WithField("currency")
}

func WrapInvalidStatus(field, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidStatus,
		fmt.Sprintf("Status %q is not valid", status),
		ErrInvalidStatus,
	).WithField(field)
}

func WrapInvalidPayload(field, reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidPayload,
		reason,
		ErrInvalidPayload,
	).WithField(field)
}

func WrapInvalidTransition(installmentID, action, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidTransition,
		fmt.Sprintf("Cannot %s installment %s in status %s", action, installmentID, status),
		ErrInvalidTransition,
	).WithField("action")
}

func WrapUnauthorized(reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeUnauthorized,
		reason,
		ErrUnauthorized,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
