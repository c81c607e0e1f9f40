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

import "testing"

// decodeBlock undoes encodeBlock so the layout can be checked as a round
// trip instead of byte by byte.
func decodeBlock(b [8]byte) (p1, p2, p3 int32, divBy4 uint8, rdiv RDiv) {
	p3 = int32(b[5]>>4)<<16 | int32(b[0])<<8 | int32(b[1])
	p1 = int32(b[2]&0x3)<<16 | int32(b[3])<<8 | int32(b[4])
	p2 = int32(b[5]&0xF)<<16 | int32(b[6])<<8 | int32(b[7])
	divBy4 = (b[2] >> 2) & 0x3
	rdiv = RDiv(b[2]>>4) & 0x7
	return p1, p2, p3, divBy4, rdiv
}

func Test_pack_params(t *testing.T) {
	cases := []struct {
		intPart, num, denom int32
		p1, p2, p3          int32
	}{
		{36, 0, 1, 4096, 0, 1},                      // 900 MHz PLL
		{90, 0, 1_000_000, 11008, 0, 1_000_000},     // 10 MHz output divider
		{34, 583_333, 1_041_666, 3911, 708_338, 1_041_666}, // 144 MHz PLL
		{8, 0, 1, 512, 0, 1},
	}
	for _, c := range cases {
		p1, p2, p3 := packParams(c.intPart, c.num, c.denom)
		if p1 != c.p1 || p2 != c.p2 || p3 != c.p3 {
			t.Errorf("packParams(%d, %d, %d) = %d, %d, %d, want %d, %d, %d",
				c.intPart, c.num, c.denom, p1, p2, p3, c.p1, c.p2, c.p3)
		}
	}
}

func Test_encode_block_layout(t *testing.T) {
	// the 10 MHz output divider, byte for byte
	got := encodeBlock(11008, 0, 1_000_000, 0, RDiv1)
	want := [8]byte{0x42, 0x40, 0x00, 0x2B, 0x00, 0xF0, 0x00, 0x00}
	if got != want {
		t.Errorf("encodeBlock = %x, want %x", got, want)
	}

	// R-divider and divide-by-4 flags share byte 2 with the top of P1
	got = encodeBlock(0, 0, 1, 0x3, RDiv64)
	if got[2] != 0x3<<2|6<<4 {
		t.Errorf("flag byte = %x, want %x", got[2], 0x3<<2|6<<4)
	}
}

func Test_encode_block_round_trip(t *testing.T) {
	type fields struct {
		p1, p2, p3 int32
		divBy4     uint8
		rdiv       RDiv
	}
	check := func(f fields) {
		b := encodeBlock(f.p1, f.p2, f.p3, f.divBy4, f.rdiv)
		p1, p2, p3, divBy4, rdiv := decodeBlock(b)
		if p1 != f.p1 || p2 != f.p2 || p3 != f.p3 || divBy4 != f.divBy4 || rdiv != f.rdiv {
			t.Errorf("round trip of %+v came back as %d, %d, %d, %d, %d", f, p1, p2, p3, divBy4, rdiv)
		}
	}

	check(fields{0, 0, 1, 0x3, RDiv1})
	check(fields{1<<18 - 1, 1<<20 - 1, 1<<20 - 1, 0, RDiv128})
	for i := 0; i < 1000; i++ {
		check(fields{
			p1:     int32(rand() * (1 << 18)),
			p2:     int32(rand() * (1 << 20)),
			p3:     int32(rand() * (1 << 20)),
			divBy4: uint8(rand()*2) * 3,
			rdiv:   RDiv(rand() * 8),
		})
	}
}
