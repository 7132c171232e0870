package umath

import "math/bits"

// FindNearestPow2 returns the smallest power of two >= x, and 1 for x <= 1.
func FindNearestPow2(x int) int {
	x -= 1
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32

	if x < 0 {
		return 1
	}

	return x + 1
}

func NextPowerOfTwo(x int) int {
	switch {
	case x <= 1:
		return 1
	case x&(x-1) == 0:
		return x
	default:
		return 1 << bits.Len(uint(x))
	}
}
