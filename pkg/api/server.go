package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/sunup/pkg/httputil"
	"github.com/platinummonkey/sunup/pkg/organizations"
	"github.com/platinummonkey/sunup/pkg/people"
	"github.com/platinummonkey/sunup/pkg/pipeline"
	"github.com/platinummonkey/sunup/pkg/users"
)

// Prefix is the path prefix of every API route
const Prefix = "/api/v1"

// Services are the operation backends of the API
type Services struct {
	People        *people.Service
	Pipeline      *pipeline.Service
	Users         *users.Service
	Organizations *organizations.Service
}

// Server represents our API server
type Server struct {
	router *mux.Router
	svc    Services
}

// NewServer creates the API server with all routes registered
func NewServer(svc Services) *Server {
	s := &Server{
		router: mux.NewRouter(),
		svc:    svc,
	}
	s.setupRoutes()
	return s
}

// Router returns the underlying router so callers can add middleware
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix(Prefix).Subrouter()

	// Session and caller
	v1.HandleFunc("/session", s.getSession).Methods("GET")
	v1.HandleFunc("/me", s.currentUser).Methods("GET")
	v1.HandleFunc("/me/roles", s.getMyRoles).Methods("GET")

	// People
	v1.HandleFunc("/people", s.createPerson).Methods("POST")
	v1.HandleFunc("/people", s.listPersons).Methods("GET")
	v1.HandleFunc("/people/search", s.searchPersons).Methods("GET")
	v1.HandleFunc("/people/{id}", s.getPerson).Methods("GET")
	v1.HandleFunc("/people/{id}", s.updatePerson).Methods("PATCH")
	v1.HandleFunc("/people/{id}", s.deletePerson).Methods("DELETE")
	v1.HandleFunc("/people/{id}/stage", s.movePersonToStage).Methods("POST")
	v1.HandleFunc("/people/{id}/history", s.getPersonHistory).Methods("GET")

	// Organizations
	v1.HandleFunc("/organizations", s.createOrganization).Methods("POST")
	v1.HandleFunc("/organizations", s.listOrganizations).Methods("GET")
	v1.HandleFunc("/organizations/{id}", s.getOrganization).Methods("GET")
	v1.HandleFunc("/organizations/{id}", s.updateOrganization).Methods("PATCH")
	v1.HandleFunc("/organizations/{id}", s.deleteOrganization).Methods("DELETE")
	v1.HandleFunc("/organizations/{id}/people", s.getPersonsByOrganization).Methods("GET")

	// Pipeline
	v1.HandleFunc("/pipeline/stages", s.getStageOrder).Methods("GET")
	v1.HandleFunc("/pipeline/stages", s.addStage).Methods("POST")
	v1.HandleFunc("/pipeline/stages/order", s.reorderStages).Methods("PUT")
	v1.HandleFunc("/pipeline/stages/initialize", s.initializeStages).Methods("POST")
	v1.HandleFunc("/pipeline/stages/by-name/{name}", s.getStageByName).Methods("GET")
	v1.HandleFunc("/pipeline/stages/{id}/deactivate", s.deactivateStage).Methods("POST")
	v1.HandleFunc("/pipeline/statistics", s.getStatistics).Methods("GET")

	// Users and roles
	v1.HandleFunc("/users", s.createUser).Methods("POST")
	v1.HandleFunc("/users", s.listUsers).Methods("GET")
	v1.HandleFunc("/users/{id}/status", s.setUserActiveStatus).Methods("PUT")
	v1.HandleFunc("/users/{id}/roles", s.listUserRoles).Methods("GET")
	v1.HandleFunc("/users/{id}/roles", s.assignRole).Methods("POST")
	v1.HandleFunc("/users/{id}/roles", s.updateUserRole).Methods("PATCH")
	v1.HandleFunc("/users/{id}/primary-role", s.setPrimaryRole).Methods("PUT")
	v1.HandleFunc("/user-roles/{id}/deactivate", s.deactivateRole).Methods("POST")

	// Subrouters resolve misses with their own handlers, so both routers
	// need them for a method mismatch to surface as 405.
	for _, r := range []*mux.Router{s.router, v1} {
		r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			httputil.WriteErrorMessage(w, http.StatusNotFound, "Route not found")
		})
		r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		})
	}
}
