package userservice

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/sushihentaime/teamblog/internal/common"
)

var (
	ErrDuplicateUsername = errors.New("duplicate username")
	ErrDuplicateEmail    = errors.New("duplicate email")
	ErrNotFound          = errors.New("user not found")
)

func NewUserModel(db *sql.DB) *UserModel {
	return &UserModel{db: db}
}

func (m *UserModel) insert(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, username, email, password, department_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at, version`

	if u.ID == "" {
		u.ID = common.NewID()
	}

	args := []any{
		u.ID,
		u.Username,
		u.Email,
		u.Password.hash,
		u.DepartmentID,
	}

	err := m.db.QueryRowContext(ctx, query, args...).Scan(&u.CreatedAt, &u.UpdatedAt, &u.Version)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case "users_username_key":
				return ErrDuplicateUsername
			case "users_email_key":
				return ErrDuplicateEmail
			}
		}
		return err
	}
	return nil
}

func (m *UserModel) getByID(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, username, email, activated, is_admin, department_id, created_at, updated_at, version
		FROM users
		WHERE id = $1`

	var u User
	err := m.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.Activated,
		&u.IsAdmin,
		&u.DepartmentID,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.Version,
	)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrNotFound
		default:
			return nil, err
		}
	}

	return &u, nil
}

func (m *UserModel) getByUsername(ctx context.Context, username string) (*User, error) {
	query := `
		SELECT id, username, email, password, version
		FROM users
		WHERE username = $1`

	var u User

	err := m.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.Email, &u.Password.hash, &u.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrNotFound
		default:
			return nil, err
		}
	}

	return &u, nil
}

// getEmails returns the emails of the activated users among ids.
func (m *UserModel) getEmails(ctx context.Context, ids []string) ([]string, error) {
	query := `
		SELECT email
		FROM users
		WHERE id = ANY($1) AND activated = true
		ORDER BY email`

	rows, err := m.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return emails, nil
}

func (m *UserModel) activate(tx *sql.Tx, ctx context.Context, id string, version int) error {
	query := `
		UPDATE users
		SET activated = true, updated_at = NOW(), version = version + 1
		WHERE id = $1 AND version = $2`

	res, err := tx.ExecContext(ctx, query, id, version)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows != 1 {
		switch {
		case rows == 0:
			return common.ErrEditConflict
		default:
			return errors.New("too many rows affected")
		}
	}

	return nil
}

// getByAccessToken loads the user owning a live access token together with
// their permissions. A user without any permission row is still returned.
func (m *UserModel) getByAccessToken(ctx context.Context, token []byte) (*User, error) {
	var u User

	query := `
		SELECT u.id, u.username, u.email, u.activated, u.is_admin, u.department_id, u.version, p.permission
		FROM users u
		INNER JOIN auth_tokens t ON u.id = t.user_id
		LEFT JOIN user_permissions p ON u.id = p.user_id
		WHERE t.access_token = $1 AND t.access_token_expiry > $2`

	rows, err := m.db.QueryContext(ctx, query, token, time.Now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p sql.NullString
		err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Activated, &u.IsAdmin, &u.DepartmentID, &u.Version, &p)
		if err != nil {
			return nil, err
		}

		if p.Valid {
			u.Permissions = append(u.Permissions, Permission(p.String))
		}
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if u.ID == "" {
		return nil, ErrNotFound
	}

	return &u, nil
}
