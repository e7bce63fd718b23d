// Package users manages principals, their role assignments and the
// binding between a user and its external identity.
//
// Users are invited: CreateUser stores the user with a pending subject and
// ProvisionUser binds the subject issued by the identity provider once the
// person signs in for the first time. There is no self sign-up.
//
// Role assignment is reserved for System Administrators. A user keeps at
// least one active role and at most one primary role; deactivating or removing
// the primary role promotes another active role.
//
// Operations that can cross tenants (ListUsers, CreateUser for another
// tenant, SetUserActiveStatus, UpdateUserRole and the role assignment
// operations) use the caller's full scope and record an audit event when it
// is Global.
package users
