package postgres

import "github.com/felixgeelhaar/ndole/internal/progression"

var (
	_ progression.SnapshotStore = (*SnapshotStore)(nil)
	_ progression.Notifier      = (*Outbox)(nil)
)
