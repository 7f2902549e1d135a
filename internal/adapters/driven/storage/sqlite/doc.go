// Package sqlite provides the persistent storage adapter: page,
// chunk and image metadata plus the FTS5 keyword index, all in a
// single SQLite database using the pure-Go modernc.org/sqlite driver.
package sqlite
