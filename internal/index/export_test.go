package index

import "time"

// WithNow sets the clock used for cache busting parameters.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
