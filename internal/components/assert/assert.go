package assert

func NotNil(value any) {
	if value == nil {
		panic("expected value to be not nil")
	}
}

// Positive panics when a configured quantity (an interval, a cache size) is zero or negative.
func Positive[T ~int | ~int64 | ~float64](value T, name string) {
	if value <= 0 {
		panic("expected " + name + " to be positive")
	}
}
