//go:build rp2040

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

package cal

import (
	"device/rp"
	"machine"
	"runtime/volatile"
	"unsafe"

	"clockgen/src/support"
)

/*
The synthesizer output under test is fed back to two PWM slices that count
its rising edges. There are a few gotchas in trying to do this:

- a single PWM counter is only 16 bits, which overflows many times per
second at the frequencies of interest, and the overflow count can't be
guessed after the fact

- the CPU can't read two counters at the same instant, so a naive
wide-counter reconstruction has a race at the wrap point

So slice 0 counts every edge and wraps at fastWrap, while slice 1 counts
the same signal through its input divider set to fastWrap, making it a
wrap counter for slice 0. Reading slow, fast, slow, fast and reducing with
support.ReduceObservation gives a race-free combined count of
fastWrap * 2^16 = 16.38M edges.

That ceiling means the fed-back output must stay below about 16 MHz for a
one-second gate. That is no restriction in practice: the correction is
measured on a nominal 10 MHz output and scales linearly to every other
frequency.
*/

// fastWrap is the wrap point of the fast counter and, equally, the input
// divider of the slow counter. Must fit the 8-bit integer part of the
// divider.
const fastWrap = 250

// CounterSpan is the largest combined count the feedback counters can
// represent; the gated frequency times the gate time must stay below it.
const CounterSpan = fastWrap << 16

const (
	fastCountPin = machine.Pin(1) // PWM0 B
	slowCountPin = machine.Pin(3) // PWM1 B
	ppsPin       = machine.Pin(10)
)

// pwmSliceHW gives register access to one PWM slice; the machine package
// does not expose the counting modes we need.
//
//goland:noinspection GoSnakeCaseUsage
type pwmSliceHW struct {
	CSR, DIV, CTR, CC, TOP volatile.Register32
}

func pwmSlice(index uint8) *pwmSliceHW {
	slices := (*[8]pwmSliceHW)(unsafe.Pointer(rp.PWM))
	return &slices[index]
}

func setupCounters() {
	fastCountPin.Configure(machine.PinConfig{Mode: machine.PinPWM})
	slowCountPin.Configure(machine.PinConfig{Mode: machine.PinPWM})

	rp.PWM.EN.ClearBits(0b11)

	fast := pwmSlice(0)
	fast.CSR.Set(rp.PWM_CH0_CSR_DIVMODE_RISE << rp.PWM_CH0_CSR_DIVMODE_Pos)
	fast.DIV.Set(1 << rp.PWM_CH0_DIV_INT_Pos)
	fast.TOP.Set(fastWrap - 1)
	fast.CTR.Set(0)

	slow := pwmSlice(1)
	slow.CSR.Set(rp.PWM_CH0_CSR_DIVMODE_RISE << rp.PWM_CH0_CSR_DIVMODE_Pos)
	slow.DIV.Set(fastWrap << rp.PWM_CH0_DIV_INT_Pos)
	slow.TOP.Set(0xffff)
	slow.CTR.Set(0)

	// enable both counters simultaneously
	rp.PWM.EN.SetBits(0b11)
}

// FastCount reads the per-edge counter, in [0, fastWrap).
func FastCount() uint32 {
	return pwmSlice(0).CTR.Get()
}

// SlowCount reads the wrap counter.
func SlowCount() uint32 {
	return pwmSlice(1).CTR.Get()
}

// MicroTime returns a race-free read of the 64-bit µs timer.
func MicroTime() uint64 {
	t := rp.TIMER
	th1, tl1, th2, tl2 := t.TIMERAWH.Get(), t.TIMERAWL.Get(), t.TIMERAWH.Get(), t.TIMERAWL.Get()
	return support.ReduceObservation(1<<32, th1, tl1, th2, tl2)
}

// Sample is one PPS-aligned observation of the feedback counters.
type Sample struct {
	T                  uint64 // monotonic sample time in µs since powerup
	Count              uint64 // combined edge count at sample time
	TH1, TL1, TH2, TL2 uint32 // raw timer words
	Hi1, Lo1, Hi2, Lo2 uint32 // raw counter words
}

type Sampler interface {
	Collect() Sample
}

// DirectSampler reads the counters with the CPU. Useful without a PPS
// source, but each read is 1-2µs from the last even when GC doesn't step
// in, so the gate edges carry that much jitter.
type DirectSampler struct{}

func (d DirectSampler) Collect() Sample {
	t := rp.TIMER
	th1, tl1, th2, tl2 := t.TIMERAWH.Get(), t.TIMERAWL.Get(), t.TIMERAWH.Get(), t.TIMERAWL.Get()
	hi1, lo1, hi2, lo2 := SlowCount(), FastCount(), SlowCount(), FastCount()
	return Sample{
		TH1: th1, TL1: tl1, TH2: th2, TL2: tl2,
		Hi1: hi1, Lo1: lo1, Hi2: hi2, Lo2: lo2,
	}
}

// DmaSampler reads data that a DMA gather has previously parked in a
// well-known place. Attaching the read time rather than the gather time to
// the sample is a little bit wrong, but the time words travel in the same
// gather, so Sample.T is honest; only staleness detection relies on the
// taint put back into the buffer.
type DmaSampler struct{}

func (d DmaSampler) Collect() Sample {
	r := Sample{
		TH1: result.th1.Get(),
		TL1: result.tl1.Get(),
		TH2: result.th2.Get(),
		TL2: result.tl2.Get(),
		Hi1: result.hi1.Get(),
		Lo1: result.lo1.Get(),
		Hi2: result.hi2.Get(),
		Lo2: result.lo2.Get(),
	}
	// put implausible values back in so a missing gather is detectable
	result.hi1.Set(0)
	result.hi2.Set(taintValue)
	return r
}

// collectSample combines the four counter words and the four timer words
// into wrap-corrected 64-bit observations.
func collectSample(s Sampler) Sample {
	r := s.Collect()
	r.Count = support.ReduceObservation(fastWrap, r.Hi1, r.Lo1, r.Hi2, r.Lo2)
	r.T = support.ReduceObservation(1<<32, r.TH1, r.TL1, r.TH2, r.TL2)
	return r
}
