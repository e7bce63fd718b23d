// Package audit records security relevant actions: refused authorization
// checks, cross-tenant reads by administrators, and administrative and data
// mutations.
//
// # Event Types
//
// Authorization: authz.access_denied, authz.global_scope
// Data: data.person_create, data.person_update, data.person_delete, data.stage_*
// Admin: admin.tenant_create, admin.user_*, admin.role_*
//
// # Usage
//
// Services receive a Logger and record events after the action commits:
//
//	audit.LogSuccess(ctx, auditLog, audit.EventTypeDataPersonDelete,
//		audit.ResourceTypePerson, person.ID, "person deleted")
//
// The server wires an async MultiLogger over a DBLogger and a LogSink:
//
//	dbLog, _ := audit.NewDBLogger(db)
//	auditLog := audit.NewAsyncMultiLogger(ctx, 2, 5*time.Second, dbLog, audit.NewLogSink(logger))
//	defer auditLog.Close()
//
// DBLogger.Search and Export back the "sunup-admin audit list" command, and
// DBLogger.Cleanup backs "sunup-admin audit prune".
package audit
