// Package people manages the prospects and customers of a tenant.
//
// Every operation resolves the caller through the auth guard and works only
// on the caller's tenant: reads of another tenant's person report NotFound,
// writes report CrossTenantAccess. Emails are trimmed, lower-cased and unique
// within a tenant.
package people
