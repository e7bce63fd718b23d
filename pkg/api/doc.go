// Package api exposes the CRM operations over HTTP.
//
// All routes live under /api/v1 on a gorilla/mux router. Handlers decode the
// request, call the owning service with the request context and render the
// result with httputil.WriteResult, so every domain error reaches the client
// with the status code of its apperr kind. Authentication happens upstream in
// middleware.IdentityMiddleware; handlers never inspect credentials.
//
//	server := api.NewServer(api.Services{
//		People:        peopleSvc,
//		Pipeline:      pipelineSvc,
//		Users:         usersSvc,
//		Organizations: orgSvc,
//	})
//	router.PathPrefix("/api/").Handler(server)
//
// GET /api/v1/session is the only route that answers without an identity;
// it reports whether the request resolves to a provisioned user.
package api
