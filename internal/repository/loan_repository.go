package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/segyhp/payroll-loans/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	loanColumns        = `id, employee_id, principal, currency, granted_at, start_date, status, notes, created_by, updated_by, created_at, updated_at`
	installmentColumns = `id, loan_id, due_date, amount, status, source, remarks, settled_at, skipped_at, created_at, updated_at`
)

type loanRepository struct {
	db *sqlx.DB
}

func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) CreateWithInstallments(ctx context.Context, loan *domain.Loan) error {
	loanQuery := r.db.Rebind(`
		INSERT INTO loans (` + loanColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	installmentQuery := r.db.Rebind(`
		INSERT INTO installments (` + installmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	return r.withinTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, loanQuery,
			loan.ID,
			loan.EmployeeID,
			loan.Principal,
			loan.Currency,
			loan.GrantedAt,
			loan.StartDate,
			loan.Status,
			loan.Notes,
			loan.CreatedBy,
			loan.UpdatedBy,
			loan.CreatedAt,
			loan.UpdatedAt,
		)
		if err != nil {
			return err
		}

		for _, inst := range loan.Installments {
			_, err = tx.ExecContext(ctx, installmentQuery,
				inst.ID,
				inst.LoanID,
				inst.DueDate,
				inst.Amount,
				inst.Status,
				inst.Source,
				inst.Remarks,
				inst.SettledAt,
				inst.SkippedAt,
				inst.CreatedAt,
				inst.UpdatedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := r.db.Rebind(`
		SELECT ` + loanColumns + `
		FROM loans
		WHERE id = ?
	`)

	var loan domain.Loan
	err := r.db.GetContext(ctx, &loan, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &loan, nil
}

func (r *loanRepository) List(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, int, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.EmployeeID != "" {
		conditions = append(conditions, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM loans ` + where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	listQuery := r.db.Rebind(`
		SELECT ` + loanColumns + `
		FROM loans
		` + where + `
		ORDER BY granted_at DESC, created_at DESC, id
		LIMIT ? OFFSET ?
	`)
	pageArgs := append(append([]interface{}{}, args...), filter.PerPage, filter.Offset())

	loans := []*domain.Loan{}
	if err := r.db.SelectContext(ctx, &loans, listQuery, pageArgs...); err != nil {
		return nil, 0, err
	}

	return loans, total, nil
}

func (r *loanRepository) Update(ctx context.Context, id uuid.UUID, patch domain.LoanPatch, actor string, now time.Time) error {
	// Only the fields present in the patch are written, so a notes edit
	// never overwrites a status derived by a concurrent transition.
	sets := []string{"updated_by = ?", "updated_at = ?"}
	args := []interface{}{actor, now}
	if patch.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *patch.Notes)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	args = append(args, id)

	query := r.db.Rebind(`UPDATE loans SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectRows(res)
}

func (r *loanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.withinTx(ctx, func(tx *sqlx.Tx) error {
		// Explicit delete so the cascade does not depend on the driver's
		// foreign key enforcement.
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM installments WHERE loan_id = ?`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM loans WHERE id = ?`), id)
		if err != nil {
			return err
		}
		return expectRows(res)
	})
}

func (r *loanRepository) GetInstallmentsByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.Installment, error) {
	query := r.db.Rebind(`
		SELECT ` + installmentColumns + `
		FROM installments
		WHERE loan_id = ?
		ORDER BY due_date, created_at, id
	`)

	installments := []*domain.Installment{}
	err := r.db.SelectContext(ctx, &installments, query, loanID)
	if err != nil {
		return nil, err
	}

	return installments, nil
}

func (r *loanRepository) GetInstallmentByID(ctx context.Context, id uuid.UUID) (*domain.Installment, error) {
	query := r.db.Rebind(`
		SELECT ` + installmentColumns + `
		FROM installments
		WHERE id = ?
	`)

	var inst domain.Installment
	err := r.db.GetContext(ctx, &inst, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &inst, nil
}

func (r *loanRepository) ListDueInstallments(ctx context.Context, asOf domain.Date) ([]*domain.Installment, error) {
	query := r.db.Rebind(`
		SELECT i.id, i.loan_id, i.due_date, i.amount, i.status, i.source, i.remarks,
		       i.settled_at, i.skipped_at, i.created_at, i.updated_at
		FROM installments i
		JOIN loans l ON l.id = i.loan_id
		WHERE i.status = ? AND l.status = ? AND i.due_date <= ?
		ORDER BY i.due_date, i.loan_id, i.id
	`)

	installments := []*domain.Installment{}
	err := r.db.SelectContext(ctx, &installments, query,
		domain.InstallmentStatusPending,
		domain.LoanStatusActive,
		asOf,
	)
	if err != nil {
		return nil, err
	}

	return installments, nil
}

func (r *loanRepository) ApplyInstallmentTransition(ctx context.Context, inst *domain.Installment, actor string) (bool, error) {
	closed := false

	err := r.withinTx(ctx, func(tx *sqlx.Tx) error {
		// Serialise transitions of the same loan so the pending count below
		// cannot miss a concurrent settlement.
		var loanStatus domain.LoanStatus
		lockQuery := `SELECT status FROM loans WHERE id = ?`
		if r.db.DriverName() == "postgres" {
			lockQuery += ` FOR UPDATE`
		}
		err := tx.GetContext(ctx, &loanStatus, tx.Rebind(lockQuery), inst.LoanID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE installments
			SET due_date = ?, status = ?, source = ?, settled_at = ?, skipped_at = ?, updated_at = ?
			WHERE id = ? AND status = ?
		`),
			inst.DueDate,
			inst.Status,
			inst.Source,
			inst.SettledAt,
			inst.SkippedAt,
			inst.UpdatedAt,
			inst.ID,
			domain.InstallmentStatusPending,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrStaleStatus
		}

		if !inst.Status.Terminal() || loanStatus != domain.LoanStatusActive {
			return nil
		}

		var pending int
		err = tx.GetContext(ctx, &pending, tx.Rebind(`
			SELECT COUNT(*) FROM installments WHERE loan_id = ? AND status = ?
		`), inst.LoanID, domain.InstallmentStatusPending)
		if err != nil {
			return err
		}
		if pending > 0 {
			return nil
		}

		res, err = tx.ExecContext(ctx, tx.Rebind(`
			UPDATE loans
			SET status = ?, updated_by = ?, updated_at = ?
			WHERE id = ? AND status = ?
		`),
			domain.LoanStatusClosed,
			actor,
			inst.UpdatedAt,
			inst.LoanID,
			domain.LoanStatusActive,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		closed = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}

	return closed, nil
}

// withinTx runs fn in a transaction, committing only if fn succeeds.
func (r *loanRepository) withinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
