package memory

import (
	"errors"
	"testing"
)

func TestNewSize(t *testing.T) {
	cases := []struct {
		size int
		ok   bool
	}{
		{0, false},
		{1023, false},
		{1024, true},
		{640 * 1024, true},
		{1 << 20, true},
		{1<<20 + 1, false},
	}

	for ix, tc := range cases {
		m, err := New(tc.size)
		if tc.ok {
			if err != nil {
				t.Errorf("Case #%d, unexpected error %v", ix, err)
				continue
			}
			if m.Len() != tc.size {
				t.Errorf("Case #%d, saw size %d, expected %d", ix, m.Len(), tc.size)
			}
		} else if !errors.Is(err, ErrSize) {
			t.Errorf("Case #%d, saw error %v, expected ErrSize", ix, err)
		}
	}
}

func TestWordView(t *testing.T) {
	m, _ := New(MinSize)

	if err := m.Write16(0x10, 0x1234); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	lo, _ := m.Read8(0x10)
	hi, _ := m.Read8(0x11)
	if lo != 0x34 || hi != 0x12 {
		t.Errorf("saw bytes 0x%02x 0x%02x, expected 0x34 0x12", lo, hi)
	}

	m.Write8(0x21, 0xab)
	m.Write8(0x22, 0xcd)
	w, _ := m.Read16(0x21)
	if w != 0xcdab {
		t.Errorf("unaligned read saw 0x%04x, expected 0xcdab", w)
	}
}

func TestOutOfRange(t *testing.T) {
	m, _ := New(MinSize)

	if _, err := m.Read8(MinSize); !errors.Is(err, ErrAddress) {
		t.Errorf("Read8 past the end, saw %v", err)
	}
	if _, err := m.Read16(MinSize - 1); !errors.Is(err, ErrAddress) {
		t.Errorf("Read16 straddling the end, saw %v", err)
	}
	if err := m.Write16(MinSize-1, 0); !errors.Is(err, ErrAddress) {
		t.Errorf("Write16 straddling the end, saw %v", err)
	}
	if err := m.Load(MinSize-2, []byte{1, 2, 3}); !errors.Is(err, ErrAddress) {
		t.Errorf("Load past the end, saw %v", err)
	}
}

func TestSeg2Abs(t *testing.T) {
	cases := []struct {
		seg, off uint16
		expected uint32
	}{
		{0, 0, 0},
		{0xABCD, 0x79BD, 0xB368D},
		{0xABCD, 0x7A13, 0xB36E3},
		{0xF000, 0x0100, 0xF0100},
		{0xFFFF, 0xFFFF, 0x10FFEF},
	}

	for ix, tc := range cases {
		seen := Seg2Abs(tc.seg, tc.off)
		if seen != tc.expected {
			t.Errorf("Case #%d, saw 0x%05x, expected 0x%05x", ix, seen, tc.expected)
		}
	}

	for seg := 0; seg < 0x10000; seg += 0x0fff {
		for off := 0; off < 0x10000; off += 0x0ff1 {
			if Seg2Abs(uint16(seg), uint16(off)) != uint32(seg*16+off) {
				t.Errorf("Seg2Abs(0x%04x, 0x%04x) mismatch", seg, off)
			}
		}
	}
}

func TestWordsRoundTrip(t *testing.T) {
	m, _ := New(MinSize + 1)
	m.Write16(0, 0xbeef)
	m.Write8(MinSize, 0x7f)

	words := m.Words()
	if len(words) != MinSize/2+1 {
		t.Fatalf("saw %d words, expected %d", len(words), MinSize/2+1)
	}
	if words[0] != 0xbeef || words[len(words)-1] != 0x007f {
		t.Errorf("saw 0x%04x / 0x%04x", words[0], words[len(words)-1])
	}

	n, _ := New(MinSize + 1)
	if err := n.SetWords(words); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	b, _ := n.Read8(MinSize)
	if b != 0x7f {
		t.Errorf("trailing byte saw 0x%02x, expected 0x7f", b)
	}
	if err := n.SetWords(words[1:]); !errors.Is(err, ErrSize) {
		t.Errorf("short word slice, saw %v", err)
	}
}

func TestLoadBIOS(t *testing.T) {
	m, _ := New(MaxSize)
	if err := m.LoadBIOS([]byte{0xea, 0x00}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	b, _ := m.Read8(0xF0100)
	if b != 0xea {
		t.Errorf("saw 0x%02x at F000:0100, expected 0xea", b)
	}

	small, _ := New(MinSize)
	if err := small.LoadBIOS([]byte{0}); !errors.Is(err, ErrAddress) {
		t.Errorf("BIOS in a 1K machine, saw %v", err)
	}
}
