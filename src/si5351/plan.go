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

package si5351

import (
	"errors"
	"fmt"

	"clockgen/src/support"
)

// Fxtal is the reference crystal frequency in Hz. Boards with a different
// crystal are not supported by the fixed-PLL planning below.
const Fxtal = 25_000_000

// PLLConfig describes one PLL as Fxtal * (Mult + Num/Denom).
//
// Mult is in [24, 36], Num in [0, 2^20-1], Denom in [1, 2^20], and
// Num < Denom whenever Denom > 1, which keeps the PLL in its
// 600..900 MHz operating range.
type PLLConfig struct {
	Mult, Num, Denom int32
	AllowIntegerMode bool
}

// OutputConfig describes one multisynth output as
// PLL / ((Div + Num/Denom) * 2^RDiv).
//
// Div is in {4, 6, 8} or [8, 1800]; values below 8 are legal only in
// integer mode. RDiv applies a final power-of-two division.
type OutputConfig struct {
	Div, Num, Denom  int32
	RDiv             RDiv
	AllowIntegerMode bool
	Inverted         bool
}

/*
Plan finds PLL and multisynth settings for the given output frequency,
which may be anywhere in [8_000, 160_000_000] Hz (values outside are
clamped). The result is within 6 Hz of fclk, assuming `correction` is
right.

The correction is the reference oscillator error in hundredths of a ppm:
if a nominal 10 MHz output measures 10_000_097 Hz, the correction is 970.
It is applied linearly before fitting, so one measured value serves every
frequency.

We are looking for integers a, b, c, x, y, z such that

	fclk = Fxtal * (a + b/c) / (x + y/z)

with a in [24, 36], x in [8, 1800] or {4, 6}, b < c, y < z, and
c, z in [1, 2^20]. Below 81 MHz the PLL is pinned at 900 MHz and the
output divider absorbs the fraction; the remainder and divisor are both
reduced by t = (fclk>>20)+1 so z stays inside its 20-bit field. Above
81 MHz the divider becomes a small even integer and the PLL absorbs the
fraction instead, with the same reduction applied to Fxtal.
*/
func Plan(fclk int32, correction int32) (PLLConfig, OutputConfig) {
	if fclk < 8_000 {
		fclk = 8_000
	} else if fclk > 160_000_000 {
		fclk = 160_000_000
	}

	out := OutputConfig{AllowIntegerMode: true}
	if fclk < 1_000_000 {
		// Fit 64*fclk and divide back down with the R-divider. This is
		// better conditioned than fitting the low frequency directly.
		fclk *= 64
		out.RDiv = RDiv64
	} else {
		out.RDiv = RDiv1
	}

	// Apply correction after the R-divider decision.
	fclk -= fclk / 1_000_000 * correction / 100

	pll := PLLConfig{AllowIntegerMode: true}
	if fclk < 81_000_000 {
		// Error stays under 6 Hz up to 81 MHz with the PLL at 900 MHz.
		pll.Mult, pll.Num, pll.Denom = 36, 0, 1
		const fpll = 900_000_000
		t := (fclk >> 20) + 1
		out.Div = fpll / fclk
		out.Num = fpll % fclk / t
		out.Denom = fclk / t
	} else {
		switch {
		case fclk >= 150_000_000:
			out.Div = 4
		case fclk >= 100_000_000:
			out.Div = 6
		default:
			out.Div = 8
		}
		out.Num, out.Denom = 0, 1

		numerator := out.Div * fclk
		t := int32(Fxtal>>20) + 1
		pll.Mult = numerator / Fxtal
		pll.Num = numerator % Fxtal / t
		pll.Denom = Fxtal / t
	}
	return pll, out
}

/*
PlanIQ finds settings that put two outputs sharing one PLL in quadrature:
program both channels from the returned configs and use phase offsets 0
and uint8(out.Div). fclk may be 1.4 MHz to 100 MHz (clamped) and the
result is within 4 Hz, assuming `correction` is right.

Integer mode must stay off so the phase offset register stays effective,
and the R-divider stays at 1 because AN619 gives no guarantee that the
phase relationship survives R-division.
*/
func PlanIQ(fclk int32, correction int32) (PLLConfig, OutputConfig) {
	if fclk < 1_400_000 {
		fclk = 1_400_000
	} else if fclk > 100_000_000 {
		fclk = 100_000_000
	}

	fclk -= fclk / 1_000_000 * correction / 100

	out := OutputConfig{Num: 0, Denom: 1, RDiv: RDiv1, AllowIntegerMode: false}
	switch {
	case fclk < 4_900_000:
		// Runs the PLL below its nominal 600 MHz floor to reach down to
		// 1.4 MHz. AN619 never forbids this; in practice the PLL stays
		// stable down to about 177 MHz, and 177/127 is what limits fclk.
		out.Div = 127
	case fclk < 8_000_000:
		out.Div = 625_000_000 / fclk
	default:
		out.Div = 900_000_000 / fclk
	}

	fpll := fclk * out.Div
	// The fixed reduction by 24 keeps Denom inside its 20-bit field.
	pll := PLLConfig{
		Mult:  fpll / Fxtal,
		Num:   fpll % Fxtal / 24,
		Denom: Fxtal / 24,
	}
	return pll, out
}

/*
PlanAt finds settings for fclk against a caller-chosen PLL frequency. This
trades Plan's fixed search for the best rational approximations available
within the 20-bit denominators, which matters when many closely spaced
frequencies must come out of one PLL setting: WSPR-style tone grids need
sub-millihertz steps that the fixed 900 MHz plan cannot always hit.

fpll must be in [600 MHz, 900 MHz]. An error is returned when no divider
satisfying the chip's constraints exists for the pair.
*/
func PlanAt(fpll, fclk int64) (PLLConfig, OutputConfig, error) {
	if fclk <= 0 {
		return PLLConfig{}, OutputConfig{}, errors.New("si5351: output frequency must be positive")
	}
	if fpll < 600_000_000 || fpll > 900_000_000 {
		return PLLConfig{}, OutputConfig{}, errors.New("si5351: pll frequency out of range")
	}

	b, c, _ := support.NearestFraction(uint64(fpll), Fxtal, 1<<20)
	pll := PLLConfig{
		Mult:  int32(b / c),
		Num:   int32(b % c),
		Denom: int32(c),
	}
	if pll.Mult < 24 || pll.Mult > 36 {
		return PLLConfig{}, OutputConfig{}, fmt.Errorf("si5351: feedback multiplier %d out of range", pll.Mult)
	}

	out := OutputConfig{RDiv: RDiv1, AllowIntegerMode: true}
	for fpll/fclk > 1800 {
		if out.RDiv == RDiv128 {
			return PLLConfig{}, OutputConfig{}, errors.New("si5351: output frequency too low for divider range")
		}
		out.RDiv++
		fclk *= 2
	}

	b, c, _ = support.NearestFraction(uint64(fpll), uint64(fclk), 1<<20)
	out.Div = int32(b / c)
	out.Num = int32(b % c)
	out.Denom = int32(c)
	if out.Div < 8 && !(out.Num == 0 && (out.Div == 4 || out.Div == 6)) {
		return PLLConfig{}, OutputConfig{}, fmt.Errorf("si5351: output divider %d+%d/%d too small", out.Div, out.Num, out.Denom)
	}
	return pll, out, nil
}
