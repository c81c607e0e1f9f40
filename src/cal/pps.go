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

	pio "github.com/tinygo-org/pio/rp2-pio"
)

/*
PPS-gated capture of the feedback counters.

Reading the counters with the CPU puts 1-2µs of latency jitter on the gate
edge, which at 10 MHz is 10-20 counts of noise per reading. To avoid that,
the counters are sampled by hardware alone:

- a PIO state machine blocks until the falling edge of the PPS signal and
  then pushes one word (the gather length) into its RX FIFO

- DMA channel d0 is paced by that FIFO and moves the word into the
  transfer-count trigger of d1

- d1 feeds control blocks (read address, write address) from the transfers
  list to d2, whose write-address register is a 2-register ring

- d2 performs each single-word move from a counter register to the result
  buffer and chains back to d1; the all-zero block at the end of the list
  stops the chain

The per-second sample therefore lands in `result` within a few bus cycles
of the PPS edge, and the CPU picks it up at leisure from the pin interrupt
on the following rising edge.
*/

// Hand-assembled gate program:
//
//	.program ppsgate
//	.wrap_target
//	    wait 1 pin 0
//	    wait 0 pin 0    ; the falling edge is the top of the second
//	    set x, 2        ; words per control block, d1's transfer count
//	    mov isr, x
//	    push block      ; back-pressure limits us to one gather per edge
//	.wrap
var ppsInstructions = []uint16{
	0x20a0, // wait 1 pin 0
	0x2020, // wait 0 pin 0
	0xe022, // set x, 2
	0xa0c1, // mov isr, x
	0x8020, // push block
}

const (
	ppsWrapTarget = 0
	ppsWrap       = 4
	ppsOrigin     = -1
)

// taintValue marks the result buffer as not yet written by a gather.
const taintValue = 0xffffffff

// result is the buffer the DMA hardware gathers the timer and counter
// words into.
var result struct {
	th1, tl1, th2, tl2 volatile.Register32
	hi1, lo1, hi2, lo2 volatile.Register32
}

// controlBlock contains DMA read and write addresses.
type controlBlock struct {
	from uint32
	to   uint32
}

// transfers lists the DMA moves of one gather, terminated by a null block.
var transfers []controlBlock

// Readers exposes the claimed hardware so callers can inspect FIFO levels
// and channel state while debugging a capture setup.
var Readers struct {
	Sm         pio.StateMachine
	D0, D1, D2 DmaChannel
}

// Capture status codes, readable through ErrorFlag.
const (
	CaptureOK = iota
	CaptureNoData
	CaptureDropped
)

var ErrorFlag volatile.Register32

func CaptureMessage(code uint32) string {
	switch code {
	case CaptureOK:
		return "capture ok"
	case CaptureNoData:
		return "no gathered data"
	case CaptureDropped:
		return "sample dropped"
	default:
		return "unknown capture status"
	}
}

func ppsInit(sm pio.StateMachine, pin machine.Pin) error {
	offset, err := sm.PIO().AddProgram(ppsInstructions, ppsOrigin)
	if err != nil {
		return err
	}
	cfg := pio.DefaultStateMachineConfig()
	cfg.SetWrap(offset+ppsWrapTarget, offset+ppsWrap)
	cfg.SetInPins(pin)
	sm.Init(offset, cfg)
	return nil
}

// Setup claims the counters, a PIO state machine and three DMA channels,
// then returns the channel the per-second samples arrive on.
func Setup() (*chan Sample, error) {
	setupCounters()
	if err := setupGather(); err != nil {
		return nil, err
	}
	return setupInterrupt()
}

func setupGather() error {
	sm, err := pio.PIO0.ClaimStateMachine()
	if err != nil {
		return err
	}
	if err := ppsInit(sm, ppsPin); err != nil {
		return err
	}
	Readers.Sm = sm
	sm.ClearFIFOs()
	sm.SetEnabled(true)

	// d0 moves the gather length from the PIO to d1 when the PIO sees an
	// edge
	d0, ok := ClaimChannel()
	if !ok {
		return errNoDmaChannel
	}
	Readers.D0 = d0

	// d1 feeds control blocks to d2
	d1, ok := ClaimChannel()
	if !ok {
		return errNoDmaChannel
	}
	Readers.D1 = d1

	// d2 does the gather, one word per control block, chaining back to d1
	d2, ok := ClaimChannel()
	if !ok {
		return errNoDmaChannel
	}
	Readers.D2 = d2

	// d0 reads from the PIO and writes to the trigger register of d1
	c0 := DefaultDMAConfig(d0.ChannelIndex())
	c0.SetReadIncrement(false)
	c0.SetWriteIncrement(false)
	c0.SetTransferDataSize(DmaTxSize32)
	c0.SetTREQ_SEL(DmaPIO_RxDREQ(sm))
	c0.SetEnable(true)
	d0.DmaRegister(DMA_AL1_CTRL).Set(c0.CTRL)
	d0.DmaRegister(DMA_TRANS_COUNT).Set(0xffff_ffff)
	d0.DmaRegister(DMA_READ_ADDR).Set(uint32(uintptr(unsafe.Pointer(sm.RxReg()))))

	c1 := DefaultDMAConfig(d1.ChannelIndex())
	c1.SetReadIncrement(true)
	c1.SetWriteIncrement(true)
	// the write address wraps back after one control block
	c1.SetRing(true, 3)
	c1.SetTransferDataSize(DmaTxSize32)
	c1.SetIRQQuiet(true)
	c1.SetEnable(false)
	d1.DmaRegister(DMA_AL1_CTRL).Set(c1.CTRL)

	t := rp.TIMER
	transfers = []controlBlock{
		{
			uint32(uintptr(unsafe.Pointer(&t.TIMERAWH))),
			uint32(uintptr(unsafe.Pointer(&result.th1))),
		},
		{
			uint32(uintptr(unsafe.Pointer(&t.TIMERAWL))),
			uint32(uintptr(unsafe.Pointer(&result.tl1))),
		},
		{
			uint32(uintptr(unsafe.Pointer(&t.TIMERAWH))),
			uint32(uintptr(unsafe.Pointer(&result.th2))),
		},
		{
			uint32(uintptr(unsafe.Pointer(&t.TIMERAWL))),
			uint32(uintptr(unsafe.Pointer(&result.tl2))),
		},
		{
			uint32(pwmCounterAddr(1)),
			uint32(uintptr(unsafe.Pointer(&result.hi1))),
		},
		{
			uint32(pwmCounterAddr(0)),
			uint32(uintptr(unsafe.Pointer(&result.lo1))),
		},
		{
			uint32(pwmCounterAddr(1)),
			uint32(uintptr(unsafe.Pointer(&result.hi2))),
		},
		{
			uint32(pwmCounterAddr(0)),
			uint32(uintptr(unsafe.Pointer(&result.lo2))),
		},
		{
			0,
			0,
		},
	}

	// d1 writes to the read-address/write-address-trigger pair on d2
	d1.DmaRegister(DMA_WRITE_ADDR).Set(uint32(d2.DmaRegisterAddress(DMA_AL2_READ_ADDR)))

	c2 := DefaultDMAConfig(d2.ChannelIndex())
	c2.SetIRQQuiet(true)
	c2.SetChainTo(d1.ChannelIndex())
	c2.SetReadIncrement(true)
	c2.SetWriteIncrement(true)
	// PWM and timer registers are 32 bits even where counts are 16
	c2.SetTransferDataSize(DmaTxSize32)
	c2.SetEnable(true)
	d2.DmaRegister(DMA_AL2_CTRL).Set(c2.CTRL)

	dmaInterruptEnable(d2.ChannelIndex(), false)
	d2.DmaRegister(DMA_AL2_TRANS_COUNT).Set(1)

	// arm d1
	d1.DmaRegister(DMA_AL1_CTRL).SetBits(rp.DMA_CH0_CTRL_TRIG_EN_Msk)
	d1.DmaRegister(DMA_READ_ADDR).Set(uint32(uintptr(unsafe.Pointer(&transfers[0]))))

	// taint the buffer so the first interrupt can tell whether a gather
	// actually happened
	result.hi1.Set(0)
	result.hi2.Set(taintValue)

	// connect the PIO to d1 via d0: every PPS edge moves the control
	// word into d1's transfer-count trigger and the gather runs
	d0.DmaRegister(DMA_AL2_WRITE_ADDR_TRIG).Set(uint32(d1.DmaRegisterAddress(DMA_AL1_TRANS_COUNT_TRIG)))

	return nil
}

func pwmCounterAddr(slice uint8) uintptr {
	return uintptr(unsafe.Pointer(&pwmSlice(slice).CTR))
}

func setupInterrupt() (*chan Sample, error) {
	ppsPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	samples := make(chan Sample, 2)
	err := ppsPin.SetInterrupt(machine.PinRising, func(pin machine.Pin) {
		// the gather should be long done half a second after the falling
		// edge, but give a late one a moment; the taint clears one word
		// before the end of the gather, so also wait for the chain to go
		// idle before trusting lo2
		for i := 0; i < 1000; i++ {
			if result.hi2.Get() != taintValue &&
				!Readers.D1.Busy() && !Readers.D2.Busy() {
				break
			}
		}
		if result.hi2.Get() == taintValue {
			ErrorFlag.Set(CaptureNoData)
			return
		}
		s := collectSample(DmaSampler{})
		select {
		case samples <- s:
			ErrorFlag.Set(CaptureOK)
		default:
			ErrorFlag.Set(CaptureDropped)
		}

		// rewind the control-block list for the next gather
		Readers.D1.DmaRegister(DMA_READ_ADDR).Set(uint32(uintptr(unsafe.Pointer(&transfers[0]))))
	})
	if err != nil {
		return nil, err
	}
	return &samples, nil
}
