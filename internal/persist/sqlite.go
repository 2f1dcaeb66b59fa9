package persist

import (
	_ "modernc.org/sqlite"
)

// newSQLiteSaver persists layouts to a local SQLite file, the offline
// driver. WAL mode with busy timeout for concurrent readers.
func newSQLiteSaver(ep Endpoint) (*sqlSaver, error) {
	dsn := ep.Path + "?_journal_mode=WAL&_busy_timeout=5000"
	return newSQLSaver("sqlite", dsn)
}
