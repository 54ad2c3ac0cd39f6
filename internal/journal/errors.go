package journal

import "errors"

// ErrNoPath is returned by Open when no database path is configured. The
// caller decides whether that means "run without a journal".
var ErrNoPath = errors.New("journal: no database path configured")
