package msg_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/1ureka/netchan/internal/msg"
)

// TestFixedWidthRoundTrip verifies every fixed-width field decodes to the
// value written and that multi-byte fields are little-endian.
func TestFixedWidthRoundTrip(t *testing.T) {
	b := msg.New(64)
	b.WriteInt8(-5)
	b.WriteUint8(200)
	b.WriteInt16(-1234)
	b.WriteUint16(60000)
	b.WriteInt32(-123456789)
	b.WriteUint32(0xDEADBEEF)

	if err := b.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Len() != 1+1+2+2+4+4 {
		t.Fatalf("Len = %d, want 14", b.Len())
	}

	r := msg.NewReader(b.Bytes())
	if got := r.ReadInt8(); got != -5 {
		t.Errorf("ReadInt8 = %d, want -5", got)
	}
	if got := r.ReadUint8(); got != 200 {
		t.Errorf("ReadUint8 = %d, want 200", got)
	}
	if got := r.ReadInt16(); got != -1234 {
		t.Errorf("ReadInt16 = %d, want -1234", got)
	}
	if got := r.ReadUint16(); got != 60000 {
		t.Errorf("ReadUint16 = %d, want 60000", got)
	}
	if got := r.ReadInt32(); got != -123456789 {
		t.Errorf("ReadInt32 = %d, want -123456789", got)
	}
	if got := uint32(r.ReadInt32()); got != 0xDEADBEEF {
		t.Errorf("ReadInt32 = %#x, want 0xdeadbeef", got)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", r.Remaining())
	}
}

func TestLittleEndianLayout(t *testing.T) {
	b := msg.New(8)
	b.WriteUint16(0x1234)
	b.WriteInt32(0x0A0B0C0D)

	want := []byte{0x34, 0x12, 0x0D, 0x0C, 0x0B, 0x0A}
	if !bytes.Equal(b.Bytes(), want) {
		t.Fatalf("bytes = % x, want % x", b.Bytes(), want)
	}
}

// TestReadPastEnd verifies the -1 sentinel and the underflow policy.
func TestReadPastEnd(t *testing.T) {
	testCases := []struct {
		name      string
		allow     bool
		wantFatal bool
	}{
		{"underflow allowed", true, false},
		{"underflow not allowed", false, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := msg.NewReader([]byte{0x07})
			r.AllowUnderflow = tc.allow

			if got := r.ReadUint8(); got != 7 {
				t.Fatalf("first read = %d, want 7", got)
			}
			if got := r.ReadUint8(); got != -1 {
				t.Errorf("read past end = %d, want -1", got)
			}
			if got := r.ReadInt16(); got != -1 {
				t.Errorf("ReadInt16 past end = %d, want -1", got)
			}
			if !r.Underflowed() {
				t.Error("Underflowed = false, want true")
			}

			fatal := errors.Is(r.Err(), msg.ErrUnderflow)
			if fatal != tc.wantFatal {
				t.Errorf("fatal = %v, want %v (err=%v)", fatal, tc.wantFatal, r.Err())
			}
		})
	}
}

// TestOverflowPolicy verifies the three outcomes of writing past capacity.
func TestOverflowPolicy(t *testing.T) {
	t.Run("overflow allowed clears and flags", func(t *testing.T) {
		b := msg.New(4)
		b.WriteData([]byte{1, 2, 3})
		b.WriteUint16(0xBEEF)

		if !b.Overflowed {
			t.Fatal("Overflowed = false, want true")
		}
		if b.Err() != nil {
			t.Fatalf("unexpected error: %v", b.Err())
		}
		if !bytes.Equal(b.Bytes(), []byte{0xEF, 0xBE}) {
			t.Errorf("bytes = % x, want ef be", b.Bytes())
		}
	})

	t.Run("overflow allowed clears on unaligned bits", func(t *testing.T) {
		b := msg.New(2)
		b.WriteUint16(0xABCD)
		b.WriteBits(1, 1)

		if !b.Overflowed {
			t.Fatal("Overflowed = false, want true")
		}
		if b.Err() != nil {
			t.Fatalf("unexpected error: %v", b.Err())
		}
		if !bytes.Equal(b.Bytes(), []byte{0x01}) {
			t.Errorf("bytes = % x, want 01", b.Bytes())
		}
	})

	t.Run("tagged buffer fails on unaligned bits", func(t *testing.T) {
		b := msg.NewTagged(2, "bits")
		b.WriteUint16(0xABCD)
		b.WriteBits(1, 1)

		if !errors.Is(b.Err(), msg.ErrOverflow) {
			t.Fatalf("err = %v, want ErrOverflow", b.Err())
		}
		if b.Overflowed {
			t.Error("Overflowed = true on a tagged buffer")
		}
	})

	t.Run("tagged buffer fails", func(t *testing.T) {
		b := msg.NewTagged(4, "reliable")
		b.WriteData([]byte{1, 2, 3})
		b.WriteUint16(0xBEEF)
		b.WriteUint8(9)

		if !errors.Is(b.Err(), msg.ErrOverflow) {
			t.Fatalf("err = %v, want ErrOverflow", b.Err())
		}
		if !strings.Contains(b.Err().Error(), "reliable") {
			t.Errorf("error %q does not name the buffer", b.Err())
		}
		if b.Len() != 3 {
			t.Errorf("Len = %d, want 3 (writes after failure are dropped)", b.Len())
		}
	})

	t.Run("write larger than capacity", func(t *testing.T) {
		b := msg.New(4)
		b.WriteData(make([]byte, 5))

		if !errors.Is(b.Err(), msg.ErrMessageTooLarge) {
			t.Fatalf("err = %v, want ErrMessageTooLarge", b.Err())
		}
	})

	t.Run("clear resets", func(t *testing.T) {
		b := msg.NewTagged(2, "t")
		b.WriteInt32(1)
		b.Clear()
		b.WriteUint16(1)

		if b.Err() != nil || b.Len() != 2 {
			t.Errorf("after Clear: err=%v len=%d", b.Err(), b.Len())
		}
	})
}

func TestStrings(t *testing.T) {
	b := msg.New(4096)
	b.WriteString("hello")
	b.WriteUint8(7)
	b.WriteString("line one\nline two")
	b.WriteString(strings.Repeat("x", msg.MaxNetString))
	b.WriteString("")

	r := msg.NewReader(b.Bytes())

	s, n := r.ReadString(3)
	if s != "he" || n != 5 {
		t.Errorf("truncated ReadString = (%q, %d), want (\"he\", 5)", s, n)
	}
	if got := r.ReadUint8(); got != 7 {
		t.Errorf("byte after truncated string = %d, want 7", got)
	}

	s, _ = r.ReadStringLine(64)
	if s != "line one" {
		t.Errorf("ReadStringLine = %q, want \"line one\"", s)
	}
	s, _ = r.ReadString(64)
	if s != "line two" {
		t.Errorf("ReadString = %q, want \"line two\"", s)
	}

	s, n = r.ReadString(64)
	if s != "" || n != 0 {
		t.Errorf("oversized string decoded as (%q, %d), want empty", s, n)
	}
	s, n = r.ReadString(64)
	if s != "" || n != 0 {
		t.Errorf("empty string decoded as (%q, %d)", s, n)
	}

	// end of data terminates like a NUL
	s, n = r.ReadString(64)
	if s != "" || n != 0 {
		t.Errorf("read at end = (%q, %d)", s, n)
	}
}

func TestStringWithoutTerminator(t *testing.T) {
	r := msg.NewReader([]byte("abc"))
	s, n := r.ReadString(16)
	if s != "abc" || n != 3 {
		t.Errorf("ReadString = (%q, %d), want (\"abc\", 3)", s, n)
	}
}
