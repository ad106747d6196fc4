package math

import "golang.org/x/exp/constraints"

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo[T constraints.Unsigned](v T) bool {
	return v != 0 && v&(v-1) == 0
}

// AlignUp rounds size up to the next multiple of alignment, which must be a power of two.
func AlignUp[T constraints.Unsigned](size, alignment T) T {
	return (size + alignment - 1) &^ (alignment - 1)
}
