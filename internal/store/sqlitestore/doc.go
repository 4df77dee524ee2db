// Package sqlitestore provides a SQLite-backed store.Store.
//
// One database file holds any number of bases. Each item is a row of the
// items table keyed by (base, key), with its data stored as JSON text.
// Fetch filters run in SQLite through the JSON1 functions (see querysql).
//
// # Ordering
//
// Fetch walks items by key with COLLATE BINARY, and the paging cursor
// resumes at the first key greater than the cursor. Results are therefore
// stable across runs, unlike the insertion order of memstore.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Updates read, apply and write back inside one transaction, so the
// partial-update semantics are exactly those of store.ApplyUpdate.
package sqlitestore
