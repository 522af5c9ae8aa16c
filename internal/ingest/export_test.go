package ingest

import "time"

// WithNow sets the clock used to time requests and date dead letters.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
