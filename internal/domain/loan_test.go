package domain

import (
	"encoding/json"
	"testing"
	"time"

	customError "github.com/segyhp/payroll-loans/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() NewLoanParams {
	return NewLoanParams{
		EmployeeID: "EMP-7",
		Principal:  100000,
		Currency:   CurrencyLocal,
		GrantedAt:  MustParseDate("2024-01-01"),
		Schedule:   NthInstallments{Count: 2},
		Actor:      "hr-admin",
		Now:        time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewLoan(t *testing.T) {
	res, err := NewLoan(validParams())
	require.NoError(t, err)

	loan := res.Loan
	assert.Equal(t, LoanStatusActive, loan.Status)
	assert.Equal(t, loan.GrantedAt, loan.StartDate)
	assert.Equal(t, "hr-admin", loan.CreatedBy)
	require.Len(t, loan.Installments, 2)
	assert.Equal(t, "2024-01-15", loan.Installments[0].DueDate.String())
	assert.Equal(t, "2024-01-29", loan.Installments[1].DueDate.String())
	assert.Equal(t, Money(100000), loan.Outstanding())
	assert.False(t, res.ScheduleMismatch)
	assert.False(t, loan.StartsBeforeGrant())
}

func TestNewLoan_StartDateAndTolerance(t *testing.T) {
	p := validParams()
	start := MustParseDate("2023-12-20")
	p.StartDate = &start
	p.Schedule = CustomInstallments{Installments: []PlannedInstallment{
		{DueDate: MustParseDate("2024-01-31"), Amount: 99990},
	}}
	p.MismatchTolerance = 10

	res, err := NewLoan(p)
	require.NoError(t, err)
	assert.True(t, res.Loan.StartsBeforeGrant())
	assert.False(t, res.ScheduleMismatch)
	assert.Equal(t, Money(99990), res.ScheduledTotal)

	p.MismatchTolerance = 9
	res, err = NewLoan(p)
	require.NoError(t, err)
	assert.True(t, res.ScheduleMismatch)
}

func TestNewLoan_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NewLoanParams)
		target error
	}{
		{name: "zero principal", mutate: func(p *NewLoanParams) { p.Principal = 0 }, target: customError.ErrInvalidAmount},
		{name: "negative principal", mutate: func(p *NewLoanParams) { p.Principal = -1 }, target: customError.ErrInvalidAmount},
		{name: "bad currency", mutate: func(p *NewLoanParams) { p.Currency = "EUR" }, target: customError.ErrInvalidCurrency},
		{name: "missing grant date", mutate: func(p *NewLoanParams) { p.GrantedAt = Date{} }, target: customError.ErrInvalidPayload},
		{name: "bad status", mutate: func(p *NewLoanParams) { p.Status = "frozen" }, target: customError.ErrInvalidStatus},
		{name: "missing schedule", mutate: func(p *NewLoanParams) { p.Schedule = nil }, target: customError.ErrInvalidSchedule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)

			res, err := NewLoan(p)

			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, customError.KindValidation, customError.Kind(err))
		})
	}
}

func TestLoanPatchValidate(t *testing.T) {
	notes := "approved by finance"
	closed := LoanStatusClosed
	bad := LoanStatus("paused")

	assert.NoError(t, LoanPatch{Notes: &notes, Status: &closed}.Validate())
	assert.NoError(t, LoanPatch{}.Validate())
	assert.ErrorIs(t, LoanPatch{Status: &bad}.Validate(), customError.ErrInvalidStatus)

	assert.True(t, LoanPatch{}.Empty())
	assert.False(t, LoanPatch{Notes: &notes}.Empty())
}

func TestCreateLoanRequest_UnmarshalJSON(t *testing.T) {
	var req CreateLoanRequest
	require.NoError(t, json.Unmarshal([]byte(`{"employee_id":"EMP-1","principal":"250.75","currency":"local",
		"granted_at":"2024-01-01","schedule":{"mode":"nth_installments","count":2}}`), &req))
	assert.Equal(t, "EMP-1", req.EmployeeID)
	assert.Equal(t, Money(25075), req.Principal)
	assert.Equal(t, NthInstallments{Count: 2}, req.Schedule.Policy)

	err := json.Unmarshal([]byte(`{"employee_id":"EMP-1","principal":"1.999"}`), &req)
	require.ErrorIs(t, err, customError.ErrInvalidAmount)
	var be *customError.BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "principal", be.Field)

	var bare Money
	err = json.Unmarshal([]byte(`"abc"`), &bare)
	require.ErrorAs(t, err, &be)
	assert.Empty(t, be.Field)
}

func TestLoanFilterOffset(t *testing.T) {
	assert.Equal(t, 0, LoanFilter{Page: 0, PerPage: 15}.Offset())
	assert.Equal(t, 0, LoanFilter{Page: 1, PerPage: 15}.Offset())
	assert.Equal(t, 30, LoanFilter{Page: 3, PerPage: 15}.Offset())
}
