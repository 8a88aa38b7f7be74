// Package lock provides non-blocking advisory locks keyed by string. The
// staging service holds one per session for the length of a generation so
// that a second concurrent request fails fast instead of queueing.
package lock

import "context"

// Locker acquires advisory locks without waiting.
//
// TryAcquire returns ok=false when another holder owns key. When ok is true
// the caller must invoke release exactly once; extra calls are no-ops.
type Locker interface {
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}
