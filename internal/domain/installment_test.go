package domain

import (
	"testing"
	"time"

	customError "github.com/segyhp/payroll-loans/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingInstallment() *Installment {
	return &Installment{
		ID:      uuid.New(),
		LoanID:  uuid.New(),
		DueDate: MustParseDate("2024-01-15"),
		Amount:  1000,
		Status:  InstallmentStatusPending,
		Source:  InstallmentSourceManual,
	}
}

func TestInstallmentApply(t *testing.T) {
	now := time.Date(2024, 1, 20, 8, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	newDue := MustParseDate("2024-02-15")

	tests := []struct {
		name     string
		action   InstallmentAction
		payload  ActionPayload
		validate func(*testing.T, *Installment)
	}{
		{
			name:   "mark_paid defaults to manual",
			action: ActionMarkPaid,
			validate: func(t *testing.T, inst *Installment) {
				assert.Equal(t, InstallmentStatusPaid, inst.Status)
				assert.Equal(t, InstallmentSourceManual, inst.Source)
				require.NotNil(t, inst.SettledAt)
				assert.Equal(t, time.UTC, inst.SettledAt.Location())
				assert.Nil(t, inst.SkippedAt)
			},
		},
		{
			name:    "mark_paid via payroll",
			action:  ActionMarkPaid,
			payload: ActionPayload{Source: InstallmentSourcePayroll},
			validate: func(t *testing.T, inst *Installment) {
				assert.Equal(t, InstallmentSourcePayroll, inst.Source)
			},
		},
		{
			name:   "mark_skipped",
			action: ActionMarkSkipped,
			validate: func(t *testing.T, inst *Installment) {
				assert.Equal(t, InstallmentStatusSkipped, inst.Status)
				require.NotNil(t, inst.SkippedAt)
				assert.Nil(t, inst.SettledAt)
			},
		},
		{
			name:    "reschedule",
			action:  ActionReschedule,
			payload: ActionPayload{DueDate: &newDue},
			validate: func(t *testing.T, inst *Installment) {
				assert.Equal(t, InstallmentStatusPending, inst.Status)
				assert.Equal(t, "2024-02-15", inst.DueDate.String())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := pendingInstallment()
			require.NoError(t, inst.Apply(tt.action, tt.payload, now))
			assert.Equal(t, now.UTC(), inst.UpdatedAt)
			tt.validate(t, inst)
		})
	}
}

func TestInstallmentApply_InvalidPayload(t *testing.T) {
	tests := []struct {
		name    string
		action  InstallmentAction
		payload ActionPayload
		field   string
	}{
		{name: "reschedule without date", action: ActionReschedule, field: "due_date"},
		{name: "unknown source", action: ActionMarkPaid, payload: ActionPayload{Source: "cash"}, field: "source"},
		{name: "unknown action", action: "refund", field: "action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := pendingInstallment()
			before := *inst

			err := inst.Apply(tt.action, tt.payload, time.Now())

			assert.ErrorIs(t, err, customError.ErrInvalidPayload)
			var be *customError.BusinessError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.field, be.Field)
			assert.Equal(t, before, *inst)
		})
	}
}

func TestInstallmentApply_TerminalIsImmutable(t *testing.T) {
	date := MustParseDate("2030-01-01")
	actions := []InstallmentAction{ActionMarkPaid, ActionMarkSkipped, ActionReschedule}

	for _, status := range []InstallmentStatus{InstallmentStatusPaid, InstallmentStatusSkipped} {
		for _, action := range actions {
			t.Run(string(status)+"/"+string(action), func(t *testing.T) {
				inst := pendingInstallment()
				inst.Status = status
				before := *inst

				err := inst.Apply(action, ActionPayload{DueDate: &date, Source: InstallmentSourcePayroll}, time.Now())

				assert.ErrorIs(t, err, customError.ErrInvalidTransition)
				assert.Equal(t, customError.KindState, customError.Kind(err))
				assert.Equal(t, before, *inst)
			})
		}
	}
}
