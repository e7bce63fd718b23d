package api

import (
	"net/http"

	"github.com/platinummonkey/sunup/pkg/httputil"
	"github.com/platinummonkey/sunup/pkg/people"
)

// createPerson handles POST /people
func (s *Server) createPerson(w http.ResponseWriter, r *http.Request) {
	var req people.NewPerson
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	person, err := s.svc.People.CreatePerson(r.Context(), req)
	httputil.WriteResult(w, r, http.StatusCreated, person, err)
}

// listPersons handles GET /people?stage=&limit=
func (s *Server) listPersons(w http.ResponseWriter, r *http.Request) {
	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", 0)
	if !ok {
		return
	}

	persons, err := s.svc.People.ListPersonsByTenant(r.Context(), people.ListOptions{
		Stage: httputil.ParseQueryString(r, "stage", ""),
		Limit: limit,
	})
	httputil.WriteResult(w, r, http.StatusOK, list(persons), err)
}

// searchPersons handles GET /people/search?q=&limit=
func (s *Server) searchPersons(w http.ResponseWriter, r *http.Request) {
	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", 0)
	if !ok {
		return
	}

	persons, err := s.svc.People.SearchPersons(r.Context(), httputil.ParseQueryString(r, "q", ""), limit)
	httputil.WriteResult(w, r, http.StatusOK, list(persons), err)
}

// getPerson handles GET /people/{id}
func (s *Server) getPerson(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	person, err := s.svc.People.GetPersonByID(r.Context(), id)
	httputil.WriteResult(w, r, http.StatusOK, person, err)
}

// updatePerson handles PATCH /people/{id}
func (s *Server) updatePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var patch people.PersonUpdate
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	person, err := s.svc.People.UpdatePerson(r.Context(), id, patch)
	httputil.WriteResult(w, r, http.StatusOK, person, err)
}

// deletePerson handles DELETE /people/{id}
func (s *Server) deletePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.svc.People.DeletePerson(r.Context(), id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// getPersonsByOrganization handles GET /organizations/{id}/people
func (s *Server) getPersonsByOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", 0)
	if !ok {
		return
	}

	persons, err := s.svc.People.GetPersonsByOrganization(r.Context(), id, limit)
	httputil.WriteResult(w, r, http.StatusOK, list(persons), err)
}
