package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type employeeRepository struct {
	db *sqlx.DB
}

func NewEmployeeRepository(db *sqlx.DB) EmployeeRepository {
	return &employeeRepository{db: db}
}

func (r *employeeRepository) Exists(ctx context.Context, employeeID string) (bool, error) {
	query := r.db.Rebind(`
		SELECT COUNT(*)
		FROM employees
		WHERE id = ? AND active = ?
	`)

	var count int
	if err := r.db.GetContext(ctx, &count, query, employeeID, true); err != nil {
		return false, err
	}

	return count > 0, nil
}
