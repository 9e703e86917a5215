package region

// Provider supplies the raw, growable memory that a heap region is carved from. It behaves like
// sbrk: every successful Grow appends bytes contiguous with all previously granted bytes, and the
// region never shrinks.
type Provider interface {
	// Grow extends the region by n bytes and returns the offset of the first new byte, which is
	// the extent of the region before the call. On failure the region must be left unchanged and
	// the returned error should wrap memutils.ErrOutOfMemory. Callers do not retry a failed Grow.
	Grow(n int) (int, error)
	// Bytes returns every byte granted so far. The returned slice may be invalidated by the next
	// call to Grow.
	Bytes() []byte
}
