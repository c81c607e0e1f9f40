/*
 * Copyright 2025 Ted Dunning
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package support holds the pure numeric helpers shared by the synthesizer
// planner and the calibration counter.
package support

/*
NearestFraction finds the best approximation c/d ≈ a/b such that
d <= maxDenom, returning c, d and the error a/b - c/d as floating point.

The approximation is built by expanding terms of a continued fraction until
the denominator of its rational value would exceed the limit.

This is what makes a fractional synthesizer hit a frequency grid. The chip's
divider fractions are limited to 20-bit denominators: just pinning the
denominator at 2^20-1 and rounding the numerator quantizes a 900 MHz PLL so
coarsely that four output frequencies spaced 1.4648 Hz apart at 144.49 MHz
all collapse to the same register values. The nearest fraction under the
same 20-bit limit separates them to better than half a millihertz. The same
applies when folding a measured reference drift into the divider: the
correction survives the rounding instead of disappearing into it.
*/
func NearestFraction(a, b, maxDenom uint64) (c, d uint64, eps float64) {
	c, d = continuedFraction(a, b, 0, 1, maxDenom)
	eps = float64(a)/float64(b) - float64(c)/float64(d)
	return c, d, eps
}

/*
continuedFraction finds a continued fraction approximation for a/b and
returns its rational value as two integers.

Any rational a/b can be written as

	cf(a, b) = floor(a/b) + rem(a/b) / b

and the second term can be inverted, giving

	cf(a, b) = floor(a/b) + 1 / cf(b, rem(a/b))

It is not obvious, but the truncations of this expansion are the best
rational approximations available for their denominators. The recursion
stops when the denominator would exceed the limit; knowing that ahead of
time requires carrying the two accumulators e, f which must start at 0, 1.
*/
func continuedFraction(a, b, e, f, maxDenom uint64) (c, d uint64) {
	term := a / b
	denom := f + term*e
	if denom > maxDenom {
		return 1, 0
	}
	ax := a - term*b
	// a / b = term + ax / b
	if ax == 0 {
		return term, 1
	}
	// a / b = term + ax/b = term + 1 / cf(b, ax),
	// cx/dx = cf(b, ax)
	// a / b = term + dx / cx = (term*cx + dx) / cx
	cx, dx := continuedFraction(b, ax, denom, e, maxDenom)
	return term*cx + dx, cx
}
