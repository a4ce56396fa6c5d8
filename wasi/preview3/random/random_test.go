package random

import (
	"bytes"
	"testing"
)

func TestGetRandomBytes(t *testing.T) {
	h := NewHost()

	a := h.GetRandomBytes(32)
	b := h.GetRandomBytes(32)
	if len(a) != 32 || len(b) != 32 {
		t.Fatalf("lengths = %d, %d, want 32", len(a), len(b))
	}
	if bytes.Equal(a, b) {
		t.Error("two secure reads returned the same bytes")
	}
	if n := len(h.GetRandomBytes(0)); n != 0 {
		t.Errorf("zero request returned %d bytes", n)
	}
}

func TestBytesCapped(t *testing.T) {
	h := NewHost()

	if n := len(h.GetRandomBytes(1 << 62)); n != MaxBytes {
		t.Errorf("secure length = %d, want %d", n, MaxBytes)
	}
	if n := len(h.GetInsecureRandomBytes(1 << 62)); n != MaxBytes {
		t.Errorf("insecure length = %d, want %d", n, MaxBytes)
	}
}

func TestGetRandomU64(t *testing.T) {
	h := NewHost()

	v1, v2 := h.GetRandomU64(), h.GetRandomU64()
	if v1 == v2 {
		t.Errorf("two secure u64 values equal: %d", v1)
	}
}

func TestInsecure(t *testing.T) {
	h := NewHost()

	data := h.GetInsecureRandomBytes(13)
	if len(data) != 13 {
		t.Fatalf("length = %d, want 13", len(data))
	}
	if bytes.Equal(data, make([]byte, 13)) {
		t.Error("insecure bytes are all zero")
	}
	if h.GetInsecureRandomU64() == h.GetInsecureRandomU64() {
		t.Error("two insecure u64 values equal")
	}
}

func TestInsecureSeedStable(t *testing.T) {
	h := NewHost()

	a, b := h.InsecureSeed()
	c, d := h.InsecureSeed()
	if a != c || b != d {
		t.Errorf("seed changed: (%d, %d) then (%d, %d)", a, b, c, d)
	}
	if a == 0 && b == 0 {
		t.Error("seed is zero")
	}
}
