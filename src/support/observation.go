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

package support

/*
ReduceObservation reduces repeated reads of a counter expressed as two
unsigned words (a high word counting wraps of the low word, the low word
wrapping at `scale`) into a single jitter-free 64-bit observation, even
though the low word may wrap during the observation.

The words cannot be read at the same instant, so the sequence read is
hi1, lo1, hi2, lo2 and the assumption baked in is that the underlying value
increments slowly relative to the read rate: at most one high-word
increment can fall inside the observation. Reading the calibration counters
takes well under a microsecond, so anything the PWM hardware can count
satisfies that.
*/
func ReduceObservation(scale uint64, hi1 uint32, lo1 uint32, hi2 uint32, lo2 uint32) uint64 {
	var t0 uint64
	if hi1 == hi2 {
		// if hi incremented, we didn't see it, so it was after lo1
		t0 = uint64(hi1)*scale + uint64(lo1)
	} else {
		// we saw an increment
		if lo1 < lo2 {
			// both lo1 and lo2 occurred after the increment because
			// there is no rollover between them
			t0 = uint64(hi2)*scale + uint64(lo1)
		} else {
			// lo1 was before the increment (and will be > scale/2)
			t0 = uint64(hi1)*scale + uint64(lo1)
		}
	}
	return t0
}
