package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/rbac"
)

const userRoleColumns = `id, user_id, role, is_active, is_primary, tenant_id, created_at`

// CreateUserRole inserts a role assignment
func (t *Tx) CreateUserRole(ctx context.Context, role *models.UserRole) error {
	role.ID = uuid.NewString()
	role.CreatedAt = now()

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO user_roles (id, user_id, role, is_active, is_primary, tenant_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, role.ID, role.UserID, string(role.Role), role.IsActive, role.IsPrimary, role.TenantID, role.CreatedAt)
	if err != nil {
		return wrapWriteErr("failed to create user role", err)
	}
	return nil
}

// GetUserRole returns a role assignment by ID
func (t *Tx) GetUserRole(ctx context.Context, id string) (*models.UserRole, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+userRoleColumns+` FROM user_roles WHERE id = $1`, id)
	role, err := scanUserRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user role")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user role: %w", err)
	}
	return role, nil
}

// FindUserRole returns the assignment of role to userID, active or not
func (t *Tx) FindUserRole(ctx context.Context, userID string, role rbac.Role) (*models.UserRole, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+userRoleColumns+` FROM user_roles WHERE user_id = $1 AND role = $2`, userID, string(role))
	r, err := scanUserRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user role")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user role: %w", err)
	}
	return r, nil
}

// ListUserRoles returns a user's role assignments in assignment order
func (t *Tx) ListUserRoles(ctx context.Context, userID string, activeOnly bool) ([]models.UserRole, error) {
	query := `SELECT ` + userRoleColumns + ` FROM user_roles WHERE user_id = $1`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY created_at, id`

	rows, err := t.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	defer rows.Close()

	var roles []models.UserRole
	for rows.Next() {
		role, err := scanUserRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// UpdateUserRoleFlags writes the active and primary flags of an assignment
func (t *Tx) UpdateUserRoleFlags(ctx context.Context, id string, active, primary bool) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE user_roles SET is_active = $1, is_primary = $2 WHERE id = $3`, active, primary, id)
	if err != nil {
		return wrapWriteErr("failed to update user role", err)
	}
	return expectOneRow(res, "user role")
}

// ClearPrimaryRole unsets the primary flag on every assignment of userID
func (t *Tx) ClearPrimaryRole(ctx context.Context, userID string) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE user_roles SET is_primary = FALSE WHERE user_id = $1 AND is_primary = TRUE`, userID)
	if err != nil {
		return fmt.Errorf("failed to clear primary role: %w", err)
	}
	return nil
}

// DeleteUserRole removes an assignment
func (t *Tx) DeleteUserRole(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM user_roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user role: %w", err)
	}
	return expectOneRow(res, "user role")
}

func scanUserRole(row rowScanner) (*models.UserRole, error) {
	var (
		r    models.UserRole
		role string
	)
	if err := row.Scan(&r.ID, &r.UserID, &role, &r.IsActive, &r.IsPrimary, &r.TenantID, &r.CreatedAt); err != nil {
		return nil, err
	}
	// Unknown persisted names are kept verbatim and grant nothing.
	r.Role = rbac.Role(role)
	return &r, nil
}
