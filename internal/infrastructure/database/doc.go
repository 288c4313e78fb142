// Package database opens and migrates tessera's SQLite store.
//
// The store holds the component roster and nothing hot: heartbeats,
// command queues and statuses live in memory, so SQLite's single-writer
// model is never on a request path. WAL mode keeps reads concurrent with
// the occasional roster write, and a busy timeout absorbs lock contention
// from the repository.
//
// Migrations are embedded in the binary (see the migrations package) and
// applied on startup, each in its own transaction. They are additive
// only: new columns arrive nullable or defaulted, and nothing is dropped
// or renamed, so an older binary can still open a newer file.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// The database file is created 0600; all queries through the repository
// layer use parameterised statements.
package database
