package domain

import (
	"encoding/json"
	"fmt"
	"sort"

	customError "github.com/segyhp/payroll-loans/pkg/errors"
)

// Schedule modes as they appear on the wire.
const (
	ScheduleModeNextPayment        = "next_payment"
	ScheduleModeNthInstallments    = "nth_installments"
	ScheduleModeCustomInstallments = "custom_installments"
)

// Resolution defaults, overridable through ScheduleLimits.
const (
	// DefaultIntervalDays is used when a policy omits interval_days.
	DefaultIntervalDays    = 14
	DefaultMaxIntervalDays = 366
	DefaultMaxInstallments = 520
)

// ScheduleLimits bound what a policy may resolve to. Zero fields take the
// package defaults.
type ScheduleLimits struct {
	DefaultIntervalDays int
	MaxIntervalDays     int
	MaxInstallments     int
}

func (l ScheduleLimits) withDefaults() ScheduleLimits {
	if l.DefaultIntervalDays <= 0 {
		l.DefaultIntervalDays = DefaultIntervalDays
	}
	if l.MaxIntervalDays <= 0 {
		l.MaxIntervalDays = DefaultMaxIntervalDays
	}
	if l.MaxInstallments <= 0 {
		l.MaxInstallments = DefaultMaxInstallments
	}
	return l
}

// SchedulePolicy is one of NextPayment, NthInstallments or CustomInstallments.
// The unexported marker keeps the set closed to this package.
type SchedulePolicy interface {
	Mode() string
	isSchedulePolicy()
}

// NextPayment puts the whole principal on a single installment.
type NextPayment struct {
	IntervalDays *int `json:"interval_days,omitempty"`
}

// NthInstallments splits the principal evenly across Count installments.
type NthInstallments struct {
	Count        int  `json:"count"`
	IntervalDays *int `json:"interval_days,omitempty"`
}

// CustomInstallments takes the installments exactly as supplied.
type CustomInstallments struct {
	Installments []PlannedInstallment `json:"installments"`
}

func (NextPayment) Mode() string        { return ScheduleModeNextPayment }
func (NthInstallments) Mode() string    { return ScheduleModeNthInstallments }
func (CustomInstallments) Mode() string { return ScheduleModeCustomInstallments }

func (NextPayment) isSchedulePolicy()        {}
func (NthInstallments) isSchedulePolicy()    {}
func (CustomInstallments) isSchedulePolicy() {}

// PlannedInstallment is a resolved (due_date, amount, remarks) tuple.
type PlannedInstallment struct {
	DueDate Date    `json:"due_date"`
	Amount  Money   `json:"amount"`
	Remarks *string `json:"remarks,omitempty"`
}

// ScheduleRequest is the JSON envelope of a SchedulePolicy, discriminated by mode.
type ScheduleRequest struct {
	Policy SchedulePolicy
}

func (r ScheduleRequest) MarshalJSON() ([]byte, error) {
	if r.Policy == nil {
		return []byte("null"), nil
	}
	payload, err := json.Marshal(r.Policy)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	mode, _ := json.Marshal(r.Policy.Mode())
	fields["mode"] = mode
	return json.Marshal(fields)
}

func (r *ScheduleRequest) UnmarshalJSON(data []byte) error {
	var head struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return customError.WrapInvalidSchedule("schedule", "schedule must be an object")
	}

	var policy SchedulePolicy
	switch head.Mode {
	case ScheduleModeNextPayment:
		var p NextPayment
		if err := json.Unmarshal(data, &p); err != nil {
			return customError.WrapInvalidSchedule("schedule", err.Error())
		}
		policy = p
	case ScheduleModeNthInstallments:
		var p NthInstallments
		if err := json.Unmarshal(data, &p); err != nil {
			return customError.WrapInvalidSchedule("schedule", err.Error())
		}
		policy = p
	case ScheduleModeCustomInstallments:
		var p CustomInstallments
		if err := json.Unmarshal(data, &p); err != nil {
			return customError.WrapInvalidSchedule("schedule.installments", err.Error())
		}
		policy = p
	default:
		return customError.WrapInvalidSchedule("schedule.mode", fmt.Sprintf("unknown schedule mode %q", head.Mode))
	}

	r.Policy = policy
	return nil
}

// Resolution is the output of ResolveSchedule.
type Resolution struct {
	Installments []PlannedInstallment
	// Total is the sum of all installment amounts.
	Total Money
	// Custom is set when the installments were supplied by the caller and
	// Total is therefore not guaranteed to equal the principal.
	Custom bool
}

// Mismatch reports how far Total is from principal.
func (r Resolution) Mismatch(principal Money) Money {
	return (r.Total - principal).Abs()
}

// ResolveSchedule turns a policy into an ordered, non-empty list of planned
// installments bounded by limits. It performs no I/O.
func ResolveSchedule(policy SchedulePolicy, principal Money, start Date, limits ScheduleLimits) (Resolution, error) {
	limits = limits.withDefaults()

	switch p := policy.(type) {
	case NextPayment:
		interval, err := limits.interval(p.IntervalDays)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{
			Installments: []PlannedInstallment{{DueDate: start.AddDays(interval), Amount: principal}},
			Total:        principal,
		}, nil

	case NthInstallments:
		if p.Count < 1 {
			return Resolution{}, customError.WrapInvalidSchedule("schedule.count", "count must be at least 1")
		}
		if p.Count > limits.MaxInstallments {
			return Resolution{}, customError.WrapInvalidSchedule("schedule.count",
				fmt.Sprintf("count must not exceed %d", limits.MaxInstallments))
		}
		if principal < Money(p.Count) {
			return Resolution{}, customError.WrapInvalidSchedule("schedule.count", "count exceeds the principal in minor units")
		}
		interval, err := limits.interval(p.IntervalDays)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{
			Installments: splitEvenly(principal, p.Count, start, interval),
			Total:        principal,
		}, nil

	case CustomInstallments:
		if len(p.Installments) == 0 {
			return Resolution{}, customError.WrapInvalidSchedule("schedule.installments", "at least one installment is required")
		}
		if len(p.Installments) > limits.MaxInstallments {
			return Resolution{}, customError.WrapInvalidSchedule("schedule.installments",
				fmt.Sprintf("at most %d installments are allowed", limits.MaxInstallments))
		}
		items := make([]PlannedInstallment, len(p.Installments))
		var total Money
		for i, item := range p.Installments {
			if !item.Amount.IsPositive() {
				return Resolution{}, customError.WrapInvalidSchedule(
					fmt.Sprintf("schedule.installments[%d].amount", i),
					"installment amount must be greater than 0",
				)
			}
			if item.DueDate.IsZero() {
				return Resolution{}, customError.WrapInvalidSchedule(
					fmt.Sprintf("schedule.installments[%d].due_date", i),
					"installment due_date is required",
				)
			}
			items[i] = item
			total += item.Amount
		}
		return Resolution{Installments: items, Total: total, Custom: true}, nil

	case nil:
		return Resolution{}, customError.WrapInvalidSchedule("schedule", "schedule is required")

	default:
		return Resolution{}, customError.WrapInvalidSchedule("schedule.mode", fmt.Sprintf("unsupported schedule mode %q", policy.Mode()))
	}
}

func (l ScheduleLimits) interval(interval *int) (int, error) {
	if interval == nil {
		return l.DefaultIntervalDays, nil
	}
	if *interval <= 0 {
		return 0, customError.WrapInvalidSchedule("schedule.interval_days", "interval_days must be greater than 0")
	}
	if *interval > l.MaxIntervalDays {
		return 0, customError.WrapInvalidSchedule("schedule.interval_days",
			fmt.Sprintf("interval_days must not exceed %d", l.MaxIntervalDays))
	}
	return *interval, nil
}

// splitEvenly divides principal into count equal parts; the remainder left by
// integer division lands on the last installment.
func splitEvenly(principal Money, count int, start Date, interval int) []PlannedInstallment {
	base := principal / Money(count)
	remainder := principal - base*Money(count)

	items := make([]PlannedInstallment, count)
	for k := 1; k <= count; k++ {
		amount := base
		if k == count {
			amount += remainder
		}
		items[k-1] = PlannedInstallment{
			DueDate: start.AddDays(k * interval),
			Amount:  amount,
		}
	}
	return items
}

// SortPlanned orders planned installments by due date, keeping input order for ties.
func SortPlanned(items []PlannedInstallment) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DueDate.Before(items[j].DueDate)
	})
}
