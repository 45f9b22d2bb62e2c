package lifecycle

import "time"

// Window is the stateless view over a contract's retraction expiry.
type Window struct {
	Expiry *time.Time
}

// Open reports whether the cooling-off period is still running. A
// contract without an expiry has not been dual-signed yet, so there is
// no window to be open.
func (w Window) Open(now time.Time) bool {
	return w.Expiry != nil && now.Before(*w.Expiry)
}

// Remaining is the time left before the window closes, clamped to zero.
func (w Window) Remaining(now time.Time) time.Duration {
	if w.Expiry == nil {
		return 0
	}
	d := w.Expiry.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
