package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/tenancy"
)

const userColumns = `id, subject, email, first_name, last_name, is_active, tenant_id, created_at, updated_at`

// CreateUser inserts a user. Subject and email are globally unique.
func (t *Tx) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = uuid.NewString()
	user.CreatedAt = now()
	user.UpdatedAt = user.CreatedAt

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO users (id, subject, email, first_name, last_name, is_active, tenant_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, user.ID, user.Subject, user.Email, user.FirstName, user.LastName, user.IsActive, user.TenantID, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return wrapWriteErr("failed to create user", err)
	}
	return nil
}

// GetUser returns a user by ID regardless of tenant; callers apply the scope.
func (t *Tx) GetUser(ctx context.Context, id string) (*models.User, error) {
	return t.getUser(ctx, `id = $1`, id)
}

// GetUserBySubject returns the user bound to an external identity subject
func (t *Tx) GetUserBySubject(ctx context.Context, subject string) (*models.User, error) {
	return t.getUser(ctx, `subject = $1`, subject)
}

// GetUserByEmail returns a user by email address
func (t *Tx) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return t.getUser(ctx, `email = $1`, email)
}

func (t *Tx) getUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListUsers returns users visible in scope, oldest first
func (t *Tx) ListUsers(ctx context.Context, scope tenancy.Scope, limit int) ([]models.User, error) {
	where, args := scope.Filter("tenant_id", 1)
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY created_at, id LIMIT $%d`,
		userColumns, where, len(args))

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// SetUserActive activates or deactivates a user
func (t *Tx) SetUserActive(ctx context.Context, id string, active bool) error {
	res, err := t.q.ExecContext(ctx, `UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3`, active, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectOneRow(res, "user")
}

// UpdateUserProfile writes the identity-provider profile fields
func (t *Tx) UpdateUserProfile(ctx context.Context, user *models.User) error {
	user.UpdatedAt = now()
	res, err := t.q.ExecContext(ctx, `
		UPDATE users SET email = $1, first_name = $2, last_name = $3, updated_at = $4
		WHERE id = $5
	`, user.Email, user.FirstName, user.LastName, user.UpdatedAt, user.ID)
	if err != nil {
		return wrapWriteErr("failed to update user profile", err)
	}
	return expectOneRow(res, "user")
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Subject, &user.Email, &user.FirstName, &user.LastName,
		&user.IsActive, &user.TenantID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// BindUserSubject attaches an external identity subject to an existing user
func (t *Tx) BindUserSubject(ctx context.Context, id, subject string) error {
	res, err := t.q.ExecContext(ctx, `UPDATE users SET subject = $1, updated_at = $2 WHERE id = $3`, subject, now(), id)
	if err != nil {
		return wrapWriteErr("failed to bind user subject", err)
	}
	return expectOneRow(res, "user")
}
