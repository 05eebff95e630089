package pointer

func To[T any](v T) *T {
	return &v
}

func DerefOrZero[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}

	return *p
}

// Clone returns a new pointer holding a copy of *p, or nil.
func Clone[T any](p *T) *T {
	if p == nil {
		return nil
	}

	v := *p
	return &v
}
