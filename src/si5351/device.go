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

// Package si5351 programs the Si5351A three-output clock generator: it
// plans PLL and multisynth divider ratios for a requested frequency and
// writes them to the chip over I2C.
package si5351

import (
	"errors"

	"tinygo.org/x/drivers"
)

// Address is the 7-bit I2C address of the Si5351A.
const Address = 0x60

var (
	ErrInvalidOutput = errors.New("si5351: invalid output channel")
	ErrDividerMode   = errors.New("si5351: divider below 8 requires integer mode")
)

// Device wraps an I2C connection to an Si5351 chip. Only CLK0..CLK2 are
// driven; CLK3..CLK7 stay powered down.
type Device struct {
	bus        drivers.I2C
	Address    uint16
	correction int32
}

// New creates a new Si5351 connection. The I2C bus must already be
// configured.
func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// Connected reads the device status register and reports whether the chip
// responds and has finished its own startup initialization.
func (d *Device) Connected() (bool, error) {
	status := []byte{0}
	err := d.bus.Tx(d.Address, []byte{0}, status)
	if err != nil {
		return false, err
	}
	// SYS_INIT (bit 7) stays high until the chip is ready.
	return status[0]&0x80 == 0, nil
}

// Configure brings the chip to a known state: all outputs disabled, all
// eight drivers powered down, crystal load capacitance set. The correction
// is the reference error in hundredths of a ppm (see Plan); it is kept for
// every later Setup call.
func (d *Device) Configure(correction int32) error {
	d.correction = correction

	if err := d.writeRegister(regOutputEnableControl, 0xFF); err != nil {
		return err
	}
	for reg := uint8(regClk0Control); reg <= regClk7Control; reg++ {
		if err := d.writeRegister(reg, 0x80); err != nil {
			return err
		}
	}
	return d.writeRegister(regCrystalLoad, uint8(CrystalLoad10pF))
}

// SetCorrection replaces the stored reference correction, e.g. after a new
// calibration measurement.
func (d *Device) SetCorrection(correction int32) {
	d.correction = correction
}

// SetupPLL writes the feedback divider for one PLL and resets both PLLs.
//
// Write failures on the parameter block and the reset trigger are not
// reported: at this layer a failed transaction leaves the chip stale with
// no recovery available, so visibility belongs to whoever owns the bus.
func (d *Device) SetupPLL(pll PLL, conf PLLConfig) {
	p1, p2, p3 := packParams(conf.Mult, conf.Num, conf.Denom)

	// The feedback divider must be an even integer for PLL integer mode.
	// The FBx_INT flags live in the CLK6/CLK7 control registers; this
	// assumes CLK6 and CLK7 are never driven (they are not, see Device)
	// and that spread spectrum stays off, which FBx_INT is incompatible
	// with.
	if conf.AllowIntegerMode && conf.Num == 0 && conf.Mult%2 == 0 {
		intCtl := uint8(regClk6Control)
		if pll == PLLB {
			intCtl = regClk7Control
		}
		d.writeRegister(intCtl, (1<<7)|(1<<6)) // CLKx_PDN and FBx_INT
	}

	base := uint8(regPLLABase)
	if pll == PLLB {
		base = regPLLBBase
	}
	d.writeBlock(base, p1, p2, p3, 0, RDiv1)

	// Reset both PLLs. Fire and forget: there is no readback that tells
	// us the reset completed.
	d.writeRegister(regPLLReset, (1<<7)|(1<<5))
}

// SetupOutput configures one of CLK0..CLK2: PLL source, drive strength,
// multisynth divider, R-divider and phase offset. The phase offset is in
// ticks of the PLL period (masked to 7 bits); PlanIQ explains how to use
// it for quadrature pairs.
//
// Only structural problems are reported. Register write failures are
// swallowed, as in SetupPLL.
func (d *Device) SetupOutput(output uint8, pll PLL, drive DriveStrength, conf OutputConfig, phaseOffset uint8) error {
	if output > 2 {
		return ErrInvalidOutput
	}
	if !conf.AllowIntegerMode && (conf.Div < 8 || (conf.Div == 8 && conf.Num == 0)) {
		// div in {4, 6, 8} is possible only in integer mode
		return ErrDividerMode
	}

	var p1, p2, p3 int32
	var divBy4 uint8
	if conf.Div == 4 {
		// Special DIVBY4 case, see AN619 4.1.3: the divider stage is
		// bypassed and the parameter fields take fixed values.
		p1, p2, p3 = 0, 0, 1
		divBy4 = 0x3
	} else {
		p1, p2, p3 = packParams(conf.Div, conf.Num, conf.Denom)
	}

	regs := outputRegMap[output]

	control := uint8(0x0C) | uint8(drive) // MS as source, powered up
	if conf.Inverted {
		control |= 1 << 4
	}
	if pll == PLLB {
		control |= 1 << 5
	}
	if conf.AllowIntegerMode && (conf.Num == 0 || conf.Div == 4) {
		control |= 1 << 6
	}

	// Fixed order: output shape first, then divider parameters, then
	// phase, matching the chip's documented configuration sequence.
	d.writeRegister(regs.control, control)
	d.writeBlock(regs.synthBase, p1, p2, p3, divBy4, conf.RDiv)
	d.writeRegister(regs.phaseOffset, phaseOffset&0x7F)

	return nil
}

// SetupCLK0 plans and programs CLK0 for the given frequency on PLL A.
func (d *Device) SetupCLK0(fclk int32, drive DriveStrength) {
	pll, out := Plan(fclk, d.correction)
	d.SetupPLL(PLLA, pll)
	d.SetupOutput(0, PLLA, drive, out, 0)
}

// SetupCLK2 plans and programs CLK2 for the given frequency on PLL B.
func (d *Device) SetupCLK2(fclk int32, drive DriveStrength) {
	pll, out := Plan(fclk, d.correction)
	d.SetupPLL(PLLB, pll)
	d.SetupOutput(2, PLLB, drive, out, 0)
}

// SetupIQ programs CLK0 and CLK1 as a quadrature pair on PLL A, with CLK1
// lagging CLK0 by 90 degrees. fclk may be 1.4 MHz to 100 MHz.
func (d *Device) SetupIQ(fclk int32, drive DriveStrength) {
	pll, out := PlanIQ(fclk, d.correction)
	d.SetupPLL(PLLA, pll)
	d.SetupOutput(0, PLLA, drive, out, 0)
	d.SetupOutput(1, PLLA, drive, out, uint8(out.Div))
}

// EnableOutputs enables exactly the outputs whose bits are set in the mask
// and disables the rest, e.g. EnableOutputs(1<<0 | 1<<2) leaves only CLK0
// and CLK2 running.
func (d *Device) EnableOutputs(mask uint8) {
	d.writeRegister(regOutputEnableControl, ^mask)
}

// writeBlock writes one 8-byte parameter block, one register per
// transaction; the chip does not require a burst write here.
func (d *Device) writeBlock(base uint8, p1, p2, p3 int32, divBy4 uint8, rdiv RDiv) {
	block := encodeBlock(p1, p2, p3, divBy4, rdiv)
	for i, b := range block {
		d.writeRegister(base+uint8(i), b)
	}
}

func (d *Device) writeRegister(reg, data uint8) error {
	return d.bus.Tx(d.Address, []byte{reg, data}, nil)
}
