// Package stores provides the run history archive.
//
// Only terminal runs are archived: the orchestrator owns live run state in
// memory, and when a run reaches a terminal status its snapshot is converted
// to records with RecordsFromSnapshot and written through ArchiveRun. The
// archive also keeps engine events per run; EventArchiver subscribes to a
// telemetry.EventPublisher and persists everything it receives.
//
// SQLiteStore is the only implementation. It uses the pure-Go modernc.org
// sqlite driver with WAL mode, and manages its schema with embedded
// golang-migrate migrations:
//
//	store, _ := stores.NewSQLiteStore(stores.Config{Path: "taskgrid.db"})
//	if err := store.Init(ctx); err != nil { ... }
//	if err := store.Migrate(ctx); err != nil { ... }
//	defer store.Close()
//
//	run, units := stores.RecordsFromSnapshot(snapshot, "nightly-etl")
//	_ = store.ArchiveRun(ctx, run, units)
package stores
