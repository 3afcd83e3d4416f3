package userservice

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sushihentaime/teamblog/internal/common"
)

// getOrCreateDepartment returns the department called name, creating it when
// it does not exist yet.
func (m *UserModel) getOrCreateDepartment(tx *sql.Tx, ctx context.Context, name string) (*Department, error) {
	query := `
		INSERT INTO departments (id, name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING`

	if _, err := tx.ExecContext(ctx, query, common.NewID(), name); err != nil {
		return nil, err
	}

	var d Department
	err := tx.QueryRowContext(ctx, `SELECT id, name, created_at FROM departments WHERE name = $1`, name).Scan(&d.ID, &d.Name, &d.CreatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, common.ErrRecordNotFound
		default:
			return nil, err
		}
	}

	return &d, nil
}

func (m *UserModel) assignMissingDepartment(tx *sql.Tx, ctx context.Context, departmentID string) (int64, error) {
	query := `
		UPDATE users
		SET department_id = $1, updated_at = NOW(), version = version + 1
		WHERE department_id IS NULL`

	res, err := tx.ExecContext(ctx, query, departmentID)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// AssignDefaultDepartment puts every user without a department into the
// department called name and reports how many users were updated.
func (s *UserService) AssignDefaultDepartment(ctx context.Context, name string) (int64, error) {
	v := common.NewValidator()
	v.Check(name != "", "name", "must be provided")
	v.Check(v.CheckStringLength(name, 1, 100), "name", "must not be more than 100 characters long")
	if !v.Valid() {
		return 0, v.ValidationError()
	}

	tx, err := s.m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	d, err := s.m.getOrCreateDepartment(tx, ctx, name)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	n, err := s.m.assignMissingDepartment(tx, ctx, d.ID)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	// Cached users carry the old department.
	if n > 0 && s.c != nil {
		s.c.Flush()
	}

	return n, nil
}
