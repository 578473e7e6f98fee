package discovery

import "time"

// Observer receives discovery engine events. Calls are made synchronously
// from the resolving or publishing goroutine, so implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	// Resolved is called once per resolution attempt.
	Resolved(res Resolution)

	// Published is called after each snapshot is made visible.
	Published(snap *Snapshot, elapsed time.Duration)
}
