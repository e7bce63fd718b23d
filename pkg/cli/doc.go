// Package cli implements sunup-admin, the operator command line for a sunup
// deployment. It covers the work that has no request-facing operation:
// schema migrations, tenant creation, bootstrapping the first System
// Administrator and binding identity subjects to invited users.
//
// # Bootstrapping a tenant
//
//	sunup-admin migrate
//	sunup-admin create-tenant --name "Acme Solar" --settings acme.yaml --seed-stages
//	sunup-admin invite-user --tenant-id <id> --email ops@acme.test \
//		--first-name Ada --last-name Ops --roles "System Administrator"
//	sunup-admin provision-user ops@acme.test "idp|12345"
//
// # Audit log
//
//	sunup-admin audit list --for-tenant <id> --since 24h --format csv
//	sunup-admin audit prune --retention-days 365
//
// # Configuration
//
// Commands read the same configuration as the server: the file named by
// --config or SUNUP_CONFIG_FILE, overridden by SUNUP_* environment variables.
package cli
