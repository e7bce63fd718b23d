package api

import (
	"net/http"

	"github.com/platinummonkey/sunup/pkg/httputil"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/organizations"
)

// createOrganization handles POST /organizations
func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizations.NewOrganization
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := s.svc.Organizations.CreateOrganization(r.Context(), req)
	httputil.WriteResult(w, r, http.StatusCreated, org, err)
}

// listOrganizations handles GET /organizations?type=&limit=
func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", 0)
	if !ok {
		return
	}
	orgType := models.OrganizationType(httputil.ParseQueryString(r, "type", ""))

	orgs, err := s.svc.Organizations.ListOrganizations(r.Context(), orgType, limit)
	httputil.WriteResult(w, r, http.StatusOK, list(orgs), err)
}

// getOrganization handles GET /organizations/{id}
func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	org, err := s.svc.Organizations.GetOrganization(r.Context(), id)
	httputil.WriteResult(w, r, http.StatusOK, org, err)
}

// updateOrganization handles PATCH /organizations/{id}
func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var patch organizations.OrganizationUpdate
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	org, err := s.svc.Organizations.UpdateOrganization(r.Context(), id, patch)
	httputil.WriteResult(w, r, http.StatusOK, org, err)
}

// deleteOrganization handles DELETE /organizations/{id}
func (s *Server) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.svc.Organizations.DeleteOrganization(r.Context(), id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
