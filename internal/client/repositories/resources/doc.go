// Package resources provides the persistence layer for synced secrets
// (passwords, OTP seeds, folders and shares) in the account database.
//
// # Overview
//
// The package defines a Repository interface for CRUD and sync queries on
// Resource models (see internal/client/models). SQLiteRepository runs its
// statements through a storage.Executor. In the client that is the
// database connection manager, so every call targets the database of the
// authorized account and fails with database.ErrConnectionClosed while the
// session is locked or signed out.
//
// # Data Model
//
// Payloads are stored encrypted, exactly as received. Deletion is soft: a
// tombstone is kept and marked pending until the next sync pushes it.
//
// Typical Usage
//
//	repo := resources.NewSQLiteRepository(manager)
//	_ = repo.Upsert(ctx, res)
//	list, _ := repo.List(ctx)
//	one, _ := repo.GetByID(ctx, id)
//	_ = repo.DeleteByID(ctx, id)
//	pend, _ := repo.ListPending(ctx)
package resources
