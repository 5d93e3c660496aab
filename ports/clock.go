package ports

import "time"

// Clock is read at every expiry check so tests can pin time
type Clock interface {
	Now() time.Time
}
