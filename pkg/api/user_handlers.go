package api

import (
	"net/http"

	"github.com/platinummonkey/sunup/pkg/httputil"
	"github.com/platinummonkey/sunup/pkg/users"
)

// getSession handles GET /session. It answers 200 for anonymous callers.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.Users.GetSession(r.Context())
	httputil.WriteResult(w, r, http.StatusOK, session, err)
}

// currentUser handles GET /me
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	me, err := s.svc.Users.CurrentUser(r.Context())
	httputil.WriteResult(w, r, http.StatusOK, me, err)
}

// getMyRoles handles GET /me/roles
func (s *Server) getMyRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.svc.Users.GetMyRoles(r.Context())
	httputil.WriteResult(w, r, http.StatusOK, list(roles), err)
}

// createUser handles POST /users
func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req users.NewUser
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := s.svc.Users.CreateUser(r.Context(), req)
	httputil.WriteResult(w, r, http.StatusCreated, user, err)
}

// listUsers handles GET /users?limit=
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", 0)
	if !ok {
		return
	}

	found, err := s.svc.Users.ListUsers(r.Context(), limit)
	httputil.WriteResult(w, r, http.StatusOK, list(found), err)
}

// setUserActiveStatus handles PUT /users/{id}/status
func (s *Server) setUserActiveStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req ActiveStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		httputil.WriteBadRequest(w, "is_active is required")
		return
	}

	change, err := s.svc.Users.SetUserActiveStatus(r.Context(), id, *req.IsActive)
	httputil.WriteResult(w, r, http.StatusOK, change, err)
}

// listUserRoles handles GET /users/{id}/roles
func (s *Server) listUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	roles, err := s.svc.Users.ListUserRoles(r.Context(), id)
	httputil.WriteResult(w, r, http.StatusOK, list(roles), err)
}

// assignRole handles POST /users/{id}/roles
func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req AssignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) || !requireField(w, r, "role", req.Role) {
		return
	}

	role, err := s.svc.Users.AssignRole(r.Context(), id, req.Role, req.IsPrimary)
	httputil.WriteResult(w, r, http.StatusCreated, role, err)
}

// updateUserRole handles PATCH /users/{id}/roles
func (s *Server) updateUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) || !requireField(w, r, "role", req.Role) {
		return
	}

	roles, err := s.svc.Users.UpdateUserRole(r.Context(), id, req.Role, req.Operation)
	httputil.WriteResult(w, r, http.StatusOK, list(roles), err)
}

// setPrimaryRole handles PUT /users/{id}/primary-role
func (s *Server) setPrimaryRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req PrimaryRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) || !requireField(w, r, "user_role_id", req.UserRoleID) {
		return
	}

	if err := s.svc.Users.SetPrimaryRole(r.Context(), id, req.UserRoleID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// deactivateRole handles POST /user-roles/{id}/deactivate
func (s *Server) deactivateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.svc.Users.DeactivateRole(r.Context(), id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
