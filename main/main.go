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

//go:build rp2040

package main

import (
	"fmt"
	"machine"
	"time"

	"clockgen/src/cal"
	"clockgen/src/si5351"
)

// calNominal is the feedback output used for calibration: CLK2 at 10 MHz,
// wired back to the counter inputs (GPIO1 and GPIO3). The PPS from the GPS
// receiver goes to GPIO10.
const calNominal = 10_000_000

// correction for this board's crystal, from an earlier calibration run;
// zero to start from scratch
var correction = int32(0)

func main() {
	time.Sleep(1000 * time.Millisecond)

	err := machine.I2C0.Configure(machine.I2CConfig{})
	if err != nil {
		panic("failed to configure I2C0")
	}

	clk := si5351.New(machine.I2C0)
	connected, err := clk.Connected()
	if err != nil || !connected {
		panic("unable to reach Si5351")
	}
	if err = clk.Configure(correction); err != nil {
		panic("unable to configure Si5351: " + err.Error())
	}

	clk.SetupCLK0(28_000_000, si5351.Drive4mA)
	clk.SetupCLK2(calNominal, si5351.Drive2mA)
	clk.EnableOutputs(1<<0 | 1<<2)
	fmt.Printf("CLK0 at 28 MHz, CLK2 at %d Hz for calibration\n", calNominal)

	samples, err := cal.Setup()
	if err != nil {
		panic("failed calibration setup: " + err.Error())
	}

	timeout := time.NewTicker(2 * time.Second)
	missedSamples := 0
	k0 := uint64(0)
	t0 := cal.MicroTime()

	for {
		select {
		case <-timeout.C:
			if missedSamples > 1 {
				fmt.Printf("no PPS for %d intervals (%s)\n",
					missedSamples, cal.CaptureMessage(cal.ErrorFlag.Get()))
			}
			missedSamples++
		case s := <-*samples:
			offset := uint64(0)
			if s.Count < k0 {
				offset = cal.CounterSpan
			}
			if k0 == 0 {
				// first sample only establishes the baseline
				k0, t0 = s.Count, s.T
				continue
			}

			f := cal.Frequency(s.Count-k0+offset, s.T-t0)
			c := cal.Estimate(int64(f+0.5), calNominal)
			fmt.Printf("f = %.3f Hz, correction = %d\n", f, c)
			if c != correction {
				correction = c
				clk.SetCorrection(correction)
				clk.SetupCLK0(28_000_000, si5351.Drive4mA)
				clk.SetupCLK2(calNominal, si5351.Drive2mA)
				fmt.Printf("applied correction %d\n", correction)
			}
			k0, t0 = s.Count, s.T
			missedSamples = 0
		}
	}
}
