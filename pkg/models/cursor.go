package models

import "time"

// Cursor is a keyset-pagination position over (modified, id). An empty ID
// marks a run boundary: only rows strictly past Modified match, so a drained
// backlog is not re-read. A non-empty ID is an intra-drain position compared
// as a tuple, which guarantees forward progress even when many rows share
// the exact same modified timestamp at a batch boundary.
type Cursor struct {
	Modified time.Time
	ID       string
}

// ChangedRow is a row id plus the timestamp that made it eligible.
type ChangedRow struct {
	ID       string    `db:"id"`
	Modified time.Time `db:"modified"`
}
