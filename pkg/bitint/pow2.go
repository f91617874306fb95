// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to validate FFT block
sizes. Both functions are O(1), allocation free and safe to call from the
audio path.

Usage:

	if !bitint.IsPowerOfTwo(framesPerBuffer) {
		suggest := bitint.NextPowerOfTwo(framesPerBuffer) // 1000 -> 1024
	}

NextPowerOfTwo works on size-1 so that an exact power of two maps to itself:
bits.Len(7) = 3 gives 1<<3 = 8, while bits.Len(8) = 4 would give 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size, and 1 for
// size <= 0.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two: exactly one bit
// set, so n&(n-1) clears it.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
