package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segyhp/payroll-loans/internal/auth"
	"github.com/segyhp/payroll-loans/internal/config"
	"github.com/segyhp/payroll-loans/internal/domain"
	"github.com/segyhp/payroll-loans/internal/logger"
	"github.com/segyhp/payroll-loans/internal/repository"
	customError "github.com/segyhp/payroll-loans/pkg/errors"
	"github.com/segyhp/payroll-loans/pkg/utils"

	"github.com/google/uuid"
)

// LoanCache is the optional read-through cache of loan detail documents.
// GetLoan reports the invalidation generation it observed; SetLoan must drop
// the write when InvalidateLoan ran since then.
type LoanCache interface {
	GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, int64, error)
	SetLoan(ctx context.Context, loan *domain.Loan, generation int64) error
	InvalidateLoan(ctx context.Context, id uuid.UUID) error
}

// Settings are the business knobs of the loan engine.
type Settings struct {
	Schedule          domain.ScheduleLimits
	MismatchTolerance domain.Money
	DefaultPageSize   int
	MaxPageSize       int
}

// DefaultSettings mirror the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		Schedule: domain.ScheduleLimits{
			DefaultIntervalDays: domain.DefaultIntervalDays,
			MaxIntervalDays:     domain.DefaultMaxIntervalDays,
			MaxInstallments:     domain.DefaultMaxInstallments,
		},
		DefaultPageSize: 15,
		MaxPageSize:     100,
	}
}

// SettingsFromConfig derives Settings from a validated Config.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	if cfg == nil {
		return s
	}
	s.Schedule = domain.ScheduleLimits{
		DefaultIntervalDays: cfg.Business.DefaultIntervalDays,
		MaxIntervalDays:     cfg.Business.MaxIntervalDays,
		MaxInstallments:     cfg.Business.MaxInstallments,
	}
	s.DefaultPageSize = cfg.Business.DefaultPageSize
	s.MaxPageSize = cfg.Business.MaxPageSize
	if tolerance, err := domain.ParseMoney(cfg.Business.ScheduleMismatchTolerance); err == nil {
		s.MismatchTolerance = tolerance
	}
	return s
}

type LoanService struct {
	LoanRepo     repository.LoanRepository
	EmployeeRepo repository.EmployeeRepository
	cache        LoanCache
	settings     Settings
	now          func() time.Time
}

// NewLoanService wires the service. cache may be nil to disable caching.
func NewLoanService(
	loanRepo repository.LoanRepository,
	employeeRepo repository.EmployeeRepository,
	cache LoanCache,
	settings Settings,
) *LoanService {
	return &LoanService{
		LoanRepo:     loanRepo,
		EmployeeRepo: employeeRepo,
		cache:        cache,
		settings:     settings,
		now:          time.Now,
	}
}

// WithClock replaces the time source. Intended for tests and replays.
func (s *LoanService) WithClock(now func() time.Time) *LoanService {
	s.now = now
	return s
}

// CreateLoan validates the request, resolves the repayment plan and persists
// the loan with all its installments in one transaction.
func (s *LoanService) CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.CreateLoanResponse, error) {
	result, err := domain.NewLoan(domain.NewLoanParams{
		EmployeeID:        request.EmployeeID,
		Principal:         request.Principal,
		Currency:          request.Currency,
		GrantedAt:         request.GrantedAt,
		StartDate:         request.StartDate,
		Status:            request.Status,
		Notes:             request.Notes,
		Schedule:          request.Schedule.Policy,
		Limits:            s.settings.Schedule,
		MismatchTolerance: s.settings.MismatchTolerance,
		Actor:             auth.ActorID(ctx),
		Now:               s.now(),
	})
	if err != nil {
		return nil, err
	}
	loan := result.Loan

	exists, err := s.EmployeeRepo.Exists(ctx, request.EmployeeID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if !exists {
		return nil, customError.WrapEmployeeNotFound(request.EmployeeID)
	}

	if loan.StartsBeforeGrant() {
		logger.CtxWarn(ctx, "Loan deductions start before the grant date",
			slog.String("employee_id", loan.EmployeeID),
			slog.String("granted_at", loan.GrantedAt.String()),
			slog.String("start_date", loan.StartDate.String()),
		)
	}

	if err := s.LoanRepo.CreateWithInstallments(ctx, loan); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	if result.ScheduleMismatch {
		logger.CtxWarn(ctx, "Custom schedule total differs from principal",
			slog.String("loan_id", loan.ID.String()),
			slog.String("principal", loan.Principal.String()),
			slog.String("scheduled_total", result.ScheduledTotal.String()),
		)
	}
	logger.CtxInfo(ctx, "Loan created",
		slog.String("loan_id", loan.ID.String()),
		slog.String("employee_id", loan.EmployeeID),
		slog.Int("installments", len(loan.Installments)),
	)

	return &domain.CreateLoanResponse{
		Loan:             loan,
		ScheduleMismatch: result.ScheduleMismatch,
		ScheduledTotal:   result.ScheduledTotal,
	}, nil
}

// GetLoan returns the loan with its installments ordered by due date.
func (s *LoanService) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	fill := false
	var generation int64
	if s.cache != nil {
		cached, gen, err := s.cache.GetLoan(ctx, id)
		if err != nil {
			logger.CtxWarn(ctx, "Loan cache read failed", slog.String("loan_id", id.String()), slog.Any("error", err))
		} else if cached != nil {
			return cached, nil
		} else {
			fill, generation = true, gen
		}
	}

	loan, err := s.loadLoan(ctx, id)
	if err != nil {
		return nil, err
	}

	if fill {
		if err := s.cache.SetLoan(ctx, loan, generation); err != nil {
			logger.CtxWarn(ctx, "Loan cache write failed", slog.String("loan_id", id.String()), slog.Any("error", err))
		}
	}

	return loan, nil
}

// ListLoans returns one page of loans matching the filter. Installments are
// not embedded in listings.
func (s *LoanService) ListLoans(ctx context.Context, filter domain.LoanFilter) (*domain.LoanPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, customError.WrapInvalidStatus("status", string(filter.Status))
	}
	filter.PerPage = utils.ClampPageSize(filter.PerPage, s.settings.DefaultPageSize, s.settings.MaxPageSize)
	filter.Page = utils.ClampPage(filter.Page, filter.PerPage)

	loans, total, err := s.LoanRepo.List(ctx, filter)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return &domain.LoanPage{
		Loans: loans,
		Meta: domain.PageMeta{
			CurrentPage: filter.Page,
			LastPage:    utils.TotalPages(total, filter.PerPage),
			PerPage:     filter.PerPage,
			Total:       total,
		},
	}, nil
}

// UpdateLoan applies a partial update. Closing through a patch is an
// administrative override and leaves installments untouched. Fields absent
// from the patch are not written.
func (s *LoanService) UpdateLoan(ctx context.Context, id uuid.UUID, patch domain.LoanPatch) (*domain.Loan, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return s.loadLoan(ctx, id)
	}

	actor := auth.ActorID(ctx)
	if err := s.LoanRepo.Update(ctx, id, patch, actor, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, customError.WrapLoanNotFound(id.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}
	s.invalidate(ctx, id)

	loan, err := s.loadLoan(ctx, id)
	if err != nil {
		return nil, err
	}

	logger.CtxInfo(ctx, "Loan updated",
		slog.String("loan_id", id.String()),
		slog.String("status", string(loan.Status)),
		slog.String("actor", actor),
	)

	return loan, nil
}

// CloseLoan sets the loan status to closed regardless of pending installments.
func (s *LoanService) CloseLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	closed := domain.LoanStatusClosed
	return s.UpdateLoan(ctx, id, domain.LoanPatch{Status: &closed})
}

// DeleteLoan removes the loan and all of its installments.
func (s *LoanService) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	if err := s.LoanRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return customError.WrapLoanNotFound(id.String())
		}
		return customError.WrapDatabaseError(err)
	}
	s.invalidate(ctx, id)

	logger.CtxInfo(ctx, "Loan deleted", slog.String("loan_id", id.String()), slog.String("actor", auth.ActorID(ctx)))
	return nil
}

// ListInstallments returns the installments of a loan ordered by due date.
func (s *LoanService) ListInstallments(ctx context.Context, loanID uuid.UUID) ([]*domain.Installment, error) {
	loan, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return loan.Installments, nil
}

// GetOutstanding sums the pending installments of a loan.
func (s *LoanService) GetOutstanding(ctx context.Context, loanID uuid.UUID) (*domain.OutstandingResponse, error) {
	loan, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return &domain.OutstandingResponse{
		LoanID:      loan.ID,
		Currency:    loan.Currency,
		Outstanding: loan.Outstanding(),
	}, nil
}

// ApplyInstallmentAction runs one lifecycle action on an installment. The
// store write is conditioned on the installment still being pending, so of
// two racing actions only the first succeeds.
func (s *LoanService) ApplyInstallmentAction(
	ctx context.Context,
	installmentID uuid.UUID,
	action domain.InstallmentAction,
	payload domain.ActionPayload,
) (*domain.InstallmentActionResult, error) {
	current, err := s.LoanRepo.GetInstallmentByID(ctx, installmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, customError.WrapInstallmentNotFound(installmentID.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}

	now := s.now()
	next := *current
	if err := next.Apply(action, payload, now); err != nil {
		return nil, err
	}

	if action == domain.ActionReschedule && next.DueDate.Before(domain.NewDate(now)) {
		logger.CtxWarn(ctx, "Installment rescheduled to a past date",
			slog.String("installment_id", installmentID.String()),
			slog.String("due_date", next.DueDate.String()),
		)
	}

	closed, err := s.LoanRepo.ApplyInstallmentTransition(ctx, &next, auth.ActorID(ctx))
	switch {
	case errors.Is(err, repository.ErrStaleStatus):
		return nil, s.staleTransition(ctx, installmentID, action)
	case errors.Is(err, repository.ErrNotFound):
		return nil, customError.WrapInstallmentNotFound(installmentID.String())
	case err != nil:
		return nil, customError.WrapDatabaseError(err)
	}
	s.invalidate(ctx, next.LoanID)

	logger.CtxInfo(ctx, "Installment action applied",
		slog.String("installment_id", installmentID.String()),
		slog.String("loan_id", next.LoanID.String()),
		slog.String("action", string(action)),
		slog.String("status", string(next.Status)),
		slog.Bool("loan_closed", closed),
	)

	return &domain.InstallmentActionResult{Installment: &next, LoanClosed: closed}, nil
}

// SettleDueInstallments is the payroll run entry point: every pending
// installment of an active loan due on or before runDate is marked paid with
// source payroll. Installments settled concurrently by someone else are
// counted and skipped; any other failure stops the run.
func (s *LoanService) SettleDueInstallments(ctx context.Context, runDate domain.Date) (*domain.SettlementReport, error) {
	due, err := s.LoanRepo.ListDueInstallments(ctx, runDate)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	report := &domain.SettlementReport{RunDate: runDate, ClosedLoans: []uuid.UUID{}}
	payload := domain.ActionPayload{Source: domain.InstallmentSourcePayroll}

	for _, inst := range due {
		result, err := s.ApplyInstallmentAction(ctx, inst.ID, domain.ActionMarkPaid, payload)
		if err != nil {
			if customError.Kind(err) == customError.KindState {
				report.SkippedConflicts++
				logger.CtxWarn(ctx, "Installment already settled during payroll run",
					slog.String("installment_id", inst.ID.String()))
				continue
			}
			return report, err
		}

		report.Settled++
		report.SettledAmount += inst.Amount
		if result.LoanClosed {
			report.ClosedLoans = append(report.ClosedLoans, inst.LoanID)
		}
	}

	logger.CtxInfo(ctx, "Payroll settlement finished",
		slog.String("run_date", runDate.String()),
		slog.Int("settled", report.Settled),
		slog.String("settled_amount", report.SettledAmount.String()),
		slog.Int("skipped_conflicts", report.SkippedConflicts),
		slog.Int("closed_loans", len(report.ClosedLoans)),
	)

	return report, nil
}

func (s *LoanService) loadLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	loan, err := s.LoanRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, customError.WrapLoanNotFound(id.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}

	installments, err := s.LoanRepo.GetInstallmentsByLoanID(ctx, id)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	loan.Installments = installments

	return loan, nil
}

// staleTransition reports the status that won the race.
func (s *LoanService) staleTransition(ctx context.Context, installmentID uuid.UUID, action domain.InstallmentAction) error {
	status := "non-pending"
	if latest, err := s.LoanRepo.GetInstallmentByID(ctx, installmentID); err == nil {
		status = string(latest.Status)
	}
	return customError.WrapInvalidTransition(installmentID.String(), string(action), status)
}

func (s *LoanService) invalidate(ctx context.Context, loanID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateLoan(ctx, loanID); err != nil {
		logger.CtxWarn(ctx, "Loan cache invalidation failed", slog.String("loan_id", loanID.String()), slog.Any("error", err))
	}
}
