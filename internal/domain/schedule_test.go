package domain

import (
	"encoding/json"
	"testing"

	customError "github.com/segyhp/payroll-loans/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestResolveSchedule_NthInstallments(t *testing.T) {
	start := MustParseDate("2024-01-01")

	tests := []struct {
		name      string
		principal Money
		count     int
		interval  *int
		amounts   []Money
		firstDue  string
		lastDue   string
	}{
		{
			name:      "remainder on last installment",
			principal: 10000000,
			count:     3,
			interval:  intPtr(14),
			amounts:   []Money{3333333, 3333333, 3333334},
			firstDue:  "2024-01-15",
			lastDue:   "2024-02-12",
		},
		{
			name:      "even split",
			principal: 120000,
			count:     4,
			interval:  intPtr(30),
			amounts:   []Money{30000, 30000, 30000, 30000},
			firstDue:  "2024-01-31",
			lastDue:   "2024-04-30",
		},
		{
			name:      "single installment uses default interval",
			principal: 999,
			count:     1,
			amounts:   []Money{999},
			firstDue:  "2024-01-15",
			lastDue:   "2024-01-15",
		},
		{
			name:      "one minor unit each",
			principal: 3,
			count:     3,
			interval:  intPtr(1),
			amounts:   []Money{1, 1, 1},
			firstDue:  "2024-01-02",
			lastDue:   "2024-01-04",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ResolveSchedule(NthInstallments{Count: tt.count, IntervalDays: tt.interval}, tt.principal, start, ScheduleLimits{})
			require.NoError(t, err)
			require.Len(t, res.Installments, tt.count)

			for i, item := range res.Installments {
				assert.Equal(t, tt.amounts[i], item.Amount)
			}
			assert.Equal(t, tt.firstDue, res.Installments[0].DueDate.String())
			assert.Equal(t, tt.lastDue, res.Installments[tt.count-1].DueDate.String())
			assert.Equal(t, tt.principal, res.Total)
			assert.False(t, res.Custom)
		})
	}
}

func TestResolveSchedule_NthInstallmentsSumAndOrderInvariant(t *testing.T) {
	start := MustParseDate("2024-03-01")
	for _, principal := range []Money{1, 7, 100, 99999, 10000001, 123456789} {
		for _, count := range []int{1, 2, 3, 7, 12, 52} {
			if principal < Money(count) {
				continue
			}
			res, err := ResolveSchedule(NthInstallments{Count: count}, principal, start, ScheduleLimits{DefaultIntervalDays: 7})
			require.NoError(t, err)
			require.Len(t, res.Installments, count)

			var sum Money
			base := principal / Money(count)
			for i, item := range res.Installments {
				sum += item.Amount
				if i < count-1 {
					assert.Equal(t, base, item.Amount)
				}
				if i > 0 {
					assert.True(t, item.DueDate.After(res.Installments[i-1].DueDate))
				}
			}
			assert.Equal(t, principal, sum, "principal=%d count=%d", principal, count)
		}
	}
}

func TestResolveSchedule_NextPayment(t *testing.T) {
	start := MustParseDate("2024-01-01")

	res, err := ResolveSchedule(NextPayment{IntervalDays: intPtr(14)}, 5000000, start, ScheduleLimits{})
	require.NoError(t, err)
	require.Len(t, res.Installments, 1)
	assert.Equal(t, Money(5000000), res.Installments[0].Amount)
	assert.Equal(t, "2024-01-15", res.Installments[0].DueDate.String())

	res, err = ResolveSchedule(NextPayment{}, 5000000, start, ScheduleLimits{DefaultIntervalDays: 30})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", res.Installments[0].DueDate.String())
}

func TestResolveSchedule_DefaultLimits(t *testing.T) {
	start := MustParseDate("2024-01-01")

	res, err := ResolveSchedule(NthInstallments{Count: DefaultMaxInstallments}, 20000000, start, ScheduleLimits{})
	require.NoError(t, err)
	assert.Len(t, res.Installments, DefaultMaxInstallments)

	_, err = ResolveSchedule(NthInstallments{Count: 20000000}, 20000000, start, ScheduleLimits{})
	assert.ErrorIs(t, err, customError.ErrInvalidSchedule)

	_, err = ResolveSchedule(NextPayment{IntervalDays: intPtr(DefaultMaxIntervalDays + 1)}, 100, start, ScheduleLimits{})
	assert.ErrorIs(t, err, customError.ErrInvalidSchedule)
}

func TestResolveSchedule_Custom(t *testing.T) {
	remark := "bonus month"
	items := []PlannedInstallment{
		{DueDate: MustParseDate("2024-03-01"), Amount: 40000, Remarks: &remark},
		{DueDate: MustParseDate("2024-02-01"), Amount: 10000},
	}

	res, err := ResolveSchedule(CustomInstallments{Installments: items}, 60000, MustParseDate("2024-01-01"), ScheduleLimits{})
	require.NoError(t, err)
	assert.True(t, res.Custom)
	assert.Equal(t, Money(50000), res.Total)
	assert.Equal(t, Money(10000), res.Mismatch(60000))
	assert.Equal(t, &remark, res.Installments[0].Remarks)

	SortPlanned(res.Installments)
	assert.Equal(t, "2024-02-01", res.Installments[0].DueDate.String())
	assert.Equal(t, "2024-03-01", res.Installments[1].DueDate.String())
}

func TestResolveSchedule_Errors(t *testing.T) {
	start := MustParseDate("2024-01-01")

	tests := []struct {
		name      string
		policy    SchedulePolicy
		principal Money
		field     string
	}{
		{name: "nil policy", policy: nil, principal: 100, field: "schedule"},
		{name: "zero count", policy: NthInstallments{Count: 0}, principal: 100, field: "schedule.count"},
		{name: "count above principal", policy: NthInstallments{Count: 3}, principal: 2, field: "schedule.count"},
		{name: "negative interval", policy: NextPayment{IntervalDays: intPtr(-1)}, principal: 100, field: "schedule.interval_days"},
		{name: "zero interval nth", policy: NthInstallments{Count: 2, IntervalDays: intPtr(0)}, principal: 100, field: "schedule.interval_days"},
		{name: "count above max installments", policy: NthInstallments{Count: 4}, principal: 20000000, field: "schedule.count"},
		{name: "interval above max", policy: NthInstallments{Count: 2, IntervalDays: intPtr(91)}, principal: 100, field: "schedule.interval_days"},
		{name: "next payment interval above max", policy: NextPayment{IntervalDays: intPtr(10000)}, principal: 100, field: "schedule.interval_days"},
		{
			name: "custom list above max installments",
			policy: CustomInstallments{Installments: []PlannedInstallment{
				{DueDate: start, Amount: 10}, {DueDate: start, Amount: 10}, {DueDate: start, Amount: 10}, {DueDate: start, Amount: 10},
			}},
			principal: 40,
			field:     "schedule.installments",
		},
		{name: "empty custom list", policy: CustomInstallments{}, principal: 100, field: "schedule.installments"},
		{
			name:      "non-positive custom amount",
			policy:    CustomInstallments{Installments: []PlannedInstallment{{DueDate: start, Amount: 10}, {DueDate: start, Amount: 0}}},
			principal: 100,
			field:     "schedule.installments[1].amount",
		},
		{
			name:      "missing custom due date",
			policy:    CustomInstallments{Installments: []PlannedInstallment{{Amount: 10}}},
			principal: 100,
			field:     "schedule.installments[0].due_date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveSchedule(tt.policy, tt.principal, start, ScheduleLimits{MaxInstallments: 3, MaxIntervalDays: 90})
			require.Error(t, err)
			assert.ErrorIs(t, err, customError.ErrInvalidSchedule)

			var be *customError.BusinessError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.field, be.Field)
		})
	}
}

func TestScheduleRequest_JSON(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected SchedulePolicy
	}{
		{
			name:     "next payment",
			body:     `{"mode":"next_payment","interval_days":14}`,
			expected: NextPayment{IntervalDays: intPtr(14)},
		},
		{
			name:     "nth installments without interval",
			body:     `{"mode":"nth_installments","count":6}`,
			expected: NthInstallments{Count: 6},
		},
		{
			name: "custom installments",
			body: `{"mode":"custom_installments","installments":[{"due_date":"2024-05-01","amount":"150.50"}]}`,
			expected: CustomInstallments{Installments: []PlannedInstallment{
				{DueDate: MustParseDate("2024-05-01"), Amount: 15050},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req ScheduleRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, tt.expected, req.Policy)

			encoded, err := json.Marshal(req)
			require.NoError(t, err)
			assert.JSONEq(t, tt.body, string(encoded))
		})
	}
}

func TestScheduleRequest_UnknownMode(t *testing.T) {
	var req ScheduleRequest
	err := json.Unmarshal([]byte(`{"mode":"balloon"}`), &req)

	assert.ErrorIs(t, err, customError.ErrInvalidSchedule)
	assert.Contains(t, err.Error(), "balloon")
}
