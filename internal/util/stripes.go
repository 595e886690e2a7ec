package util

import "runtime"

// StripeCount picks the number of lock stripes for a hash index:
// nextPow2(4*GOMAXPROCS) clamped to [1..256], and never more stripes than
// a quarter of the expected entries.
func StripeCount(expected int) int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	n := int(NextPow2(uint64(p * 4)))
	if n > 256 {
		n = 256
	}
	if limit := int(NextPow2(uint64(expected/4 + 1))); n > limit {
		n = limit
	}
	if n < 1 {
		n = 1
	}
	return n
}

// StripeIndex maps a hash to one of n stripes, n a power of two. The top
// bits are used so the low bits stay free for bucket selection.
func StripeIndex(hash uint64, n int) int {
	if n <= 1 {
		return 0
	}
	return int((hash >> 32) & uint64(n-1))
}
