package sqlite

import (
	"github.com/felixgeelhaar/ndole/internal/progression"
)

// Ensure SQLite stores implement the progression interfaces.
var (
	_ progression.SnapshotStore = (*SnapshotStore)(nil)
	_ progression.Notifier      = (*NotificationStore)(nil)
)
