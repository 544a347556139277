package browser

import "context"

// CombineContext returns a context that is cancelled as soon as either input
// context is done. Driver operations derive from it so a command respects
// both the session lifetime and the caller's deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}
