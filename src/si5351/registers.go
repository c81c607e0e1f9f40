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

// Register map for the Si5351A/B/C. Addresses are fixed by the chip and
// must match AN619 exactly.
const (
	regOutputEnableControl = 3

	regClk0Control = 16
	regClk1Control = 17
	regClk2Control = 18
	regClk3Control = 19
	regClk4Control = 20
	regClk5Control = 21
	regClk6Control = 22
	regClk7Control = 23

	regPLLABase = 26
	regPLLBBase = 34

	regMultisynth0Base = 42
	regMultisynth1Base = 50
	regMultisynth2Base = 58

	regClk0PhaseOffset = 165
	regClk1PhaseOffset = 166
	regClk2PhaseOffset = 167

	regPLLReset    = 177
	regCrystalLoad = 183
)

// PLL selects one of the two synthesis PLLs.
type PLL uint8

const (
	PLLA PLL = iota
	PLLB
)

// DriveStrength is the output driver current setting, bits 1:0 of the
// clock control register.
type DriveStrength uint8

const (
	Drive2mA DriveStrength = iota
	Drive4mA
	Drive6mA
	Drive8mA
)

// RDiv is the exponent of the power-of-two output R-divider, so the final
// output is divided by 1<<RDiv. It maps directly onto the Rx_DIV register
// field.
type RDiv uint8

const (
	RDiv1 RDiv = iota
	RDiv2
	RDiv4
	RDiv8
	RDiv16
	RDiv32
	RDiv64
	RDiv128
)

// CrystalLoad values include the reserved low bits AN619 requires to be
// written as 010010.
type CrystalLoad uint8

const (
	CrystalLoad6pF  CrystalLoad = (1 << 6) | 0b010010
	CrystalLoad8pF  CrystalLoad = (2 << 6) | 0b010010
	CrystalLoad10pF CrystalLoad = (3 << 6) | 0b010010
)

// outputRegs collects the three per-channel register addresses so the
// channel dispatch lives in one table rather than a switch at every use.
type outputRegs struct {
	control     uint8
	synthBase   uint8
	phaseOffset uint8
}

var outputRegMap = [3]outputRegs{
	{regClk0Control, regMultisynth0Base, regClk0PhaseOffset},
	{regClk1Control, regMultisynth1Base, regClk1PhaseOffset},
	{regClk2Control, regMultisynth2Base, regClk2PhaseOffset},
}

// packParams converts an (intPart + num/denom) divider or multiplier ratio
// into the P1/P2/P3 encoding shared by the PLL feedback and multisynth
// register blocks.
//
//	P1 = 128*intPart + floor(128*num/denom) - 512
//	P2 = (128*num) mod denom
//	P3 = denom
//
// The field widths (P1: 18 bits, P2 and P3: 20 bits) are guaranteed by the
// planner's bounds on num and denom, so no range check happens here.
func packParams(intPart, num, denom int32) (p1, p2, p3 int32) {
	p1 = 128*intPart + (128*num)/denom - 512
	p2 = (128 * num) % denom
	p3 = denom
	return p1, p2, p3
}

// encodeBlock lays P1/P2/P3 plus the divide-by-4 flag and R-divider exponent
// out as the 8 bytes of a parameter register block. The layout is mandated
// by the chip:
//
//	[0] P3[15:8]
//	[1] P3[7:0]
//	[2] P1[17:16] | divBy4[1:0]<<2 | rdiv[2:0]<<4
//	[3] P1[15:8]
//	[4] P1[7:0]
//	[5] P3[19:16]<<4 | P2[19:16]
//	[6] P2[15:8]
//	[7] P2[7:0]
func encodeBlock(p1, p2, p3 int32, divBy4 uint8, rdiv RDiv) [8]byte {
	return [8]byte{
		byte(p3 >> 8),
		byte(p3),
		byte((p1>>16)&0x3) | (divBy4&0x3)<<2 | (byte(rdiv)&0x7)<<4,
		byte(p1 >> 8),
		byte(p1),
		byte((p3>>12)&0xF0) | byte((p2>>16)&0xF),
		byte(p2 >> 8),
		byte(p2),
	}
}
