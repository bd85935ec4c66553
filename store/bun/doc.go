// Package bunstore provides a PostgreSQL-backed store.Store built on the
// Bun ORM. It is the recommended production backend: the availability
// commit maps to a single database transaction, contract locks use
// conditional updates, and leadership uses a TTL column on the nodes
// table.
//
// Construct with an existing *bun.DB:
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	store := bunstore.New(db)
//	if err := store.Migrate(ctx); err != nil { ... }
package bunstore
