// Package storage is the SQL persistence layer for sunup.
//
// A Store wraps a *sql.DB and runs every request as one transaction:
//
//	err := store.WithTx(ctx, func(tx *storage.Tx) error {
//		person, err := tx.GetPerson(ctx, id)
//		if err != nil {
//			return err
//		}
//		return tx.SetPersonStage(ctx, person.ID, "Set")
//	})
//
// On PostgreSQL (lib/pq) write transactions are serializable and the closure
// is re-run on serialization failures and deadlocks. SQLite (mattn/go-sqlite3)
// is supported for tests and single-node development; see storagetest.
//
// Queries use $N placeholders numbered in order of first appearance, which
// both drivers accept. List queries take a tenancy.Scope; get-by-id queries
// do not filter by tenant and callers apply Scope.CheckRead or CheckWrite to
// the result.
package storage
