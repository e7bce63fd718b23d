package api

import "github.com/platinummonkey/sunup/pkg/users"

// MoveRequest is the body of POST /people/{id}/stage
type MoveRequest struct {
	ToStage string  `json:"to_stage"`
	Reason  *string `json:"reason,omitempty"`
}

// ActiveStatusRequest is the body of PUT /users/{id}/status
type ActiveStatusRequest struct {
	IsActive *bool `json:"is_active"`
}

// AssignRoleRequest is the body of POST /users/{id}/roles
type AssignRoleRequest struct {
	Role      string `json:"role"`
	IsPrimary bool   `json:"is_primary"`
}

// UpdateRoleRequest is the body of PATCH /users/{id}/roles
type UpdateRoleRequest struct {
	Role      string              `json:"role"`
	Operation users.RoleOperation `json:"operation"`
}

// PrimaryRoleRequest is the body of PUT /users/{id}/primary-role
type PrimaryRoleRequest struct {
	UserRoleID string `json:"user_role_id"`
}

// ListResponse wraps list results with their count
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func list[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}
