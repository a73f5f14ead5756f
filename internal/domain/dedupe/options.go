package dedupe

// Option configures a memory Deduper.
type Option func(*memoryDeduper)

// WithMaxSize bounds the number of remembered keys; the oldest key is evicted
// first. A value <= 0 disables eviction.
func WithMaxSize(maxSize int) Option {
	return func(d *memoryDeduper) {
		d.maxSize = maxSize
	}
}
