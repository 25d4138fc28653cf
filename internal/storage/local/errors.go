package local

import (
	"fmt"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = fmt.Errorf("local record: %w", domain.ErrNotFound)
)
