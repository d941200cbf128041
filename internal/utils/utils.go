package utils

// Ptr returns a pointer to the given value.
func Ptr[T any](v T) *T { return &v }

// Clamp limits v to the [lo, hi] range.
func Clamp[T float32 | float64 | int](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
