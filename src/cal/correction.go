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

// Package cal measures a synthesizer output against an external reference
// (typically the pulse-per-second output of a GPS receiver) and turns the
// result into the correction value the planner wants.
package cal

// Estimate converts a measured output frequency into the correction the
// planner applies, in hundredths of a ppm of the reference. A nominal
// 10 MHz output that measures 10_000_097 Hz gives 970. The correction
// scales linearly, so a measurement at one frequency serves all of them.
func Estimate(measured, nominal int64) int32 {
	diff := measured - nominal
	if diff >= 0 {
		return int32((diff*200_000_000/nominal + 1) / 2)
	}
	return int32((diff*200_000_000/nominal - 1) / 2)
}

// Frequency converts a gated edge count and the elapsed gate time in
// microseconds into Hz.
func Frequency(count uint64, elapsedMicros uint64) float64 {
	if elapsedMicros == 0 {
		return 0
	}
	return float64(count) * 1e6 / float64(elapsedMicros)
}
