package wire

import (
	"bytes"
	"testing"
	"time"
)

func mustDecode(t *testing.T, b []byte) Entry {
	t.Helper()
	e, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return e
}

func TestValueRoundTrip(t *testing.T) {
	exp := time.Unix(1700000000, 123)
	cases := []struct {
		payload []byte
		exp     time.Time
	}{
		{nil, time.Time{}},
		{[]byte{}, time.Time{}},
		{[]byte("hello"), time.Time{}},
		{[]byte{0, 1, 2, 3}, exp},
	}
	for _, tc := range cases {
		e := mustDecode(t, Value(tc.payload, tc.exp))
		if e.Kind != KindValue {
			t.Fatalf("kind=%d", e.Kind)
		}
		if !bytes.Equal(e.Payload, tc.payload) {
			t.Fatalf("payload mismatch: got %x want %x", e.Payload, tc.payload)
		}
		if !e.ExpiresAt.Equal(tc.exp) {
			t.Fatalf("expiry mismatch: got %v want %v", e.ExpiresAt, tc.exp)
		}
	}
}

// An empty serialized value must stay distinguishable from the absent marker.
func TestEmptyValueIsNotAbsent(t *testing.T) {
	v := mustDecode(t, Value([]byte{}, time.Time{}))
	a := mustDecode(t, Absent())
	if v.Absent() {
		t.Fatalf("empty value decoded as absent")
	}
	if !a.Absent() {
		t.Fatalf("absent marker decoded as value")
	}
}

func TestAbsentDropsPayload(t *testing.T) {
	e := mustDecode(t, Encode(Entry{Kind: KindAbsent, Payload: []byte("x")}))
	if len(e.Payload) != 0 {
		t.Fatalf("absent entry kept payload %q", e.Payload)
	}
}

func TestExpired(t *testing.T) {
	now := time.Unix(1000, 0)
	if (Entry{}).Expired(now) {
		t.Fatalf("entry without expiry reported expired")
	}
	if !(Entry{ExpiresAt: now}).Expired(now) {
		t.Fatalf("expiry == now should be expired")
	}
	if (Entry{ExpiresAt: now.Add(time.Second)}).Expired(now) {
		t.Fatalf("future expiry reported expired")
	}
}

func TestCorruptInputs(t *testing.T) {
	enc := Value([]byte("abc"), time.Time{})

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1

	badKind := append([]byte(nil), enc...)
	badKind[5] = 9

	trailing := append(append([]byte(nil), enc...), 0xDE, 0xAD)

	absentWithLen := Absent()
	absentWithLen[len(absentWithLen)-1] = 1

	for name, b := range map[string][]byte{
		"short":           enc[:hdrLen-1],
		"bad magic":       badMagic,
		"bad version":     badVer,
		"bad kind":        badKind,
		"trailing":        trailing,
		"truncated":       enc[:len(enc)-1],
		"absent with len": absentWithLen,
		"foreign":         []byte("not-wire-format-at-all"),
	} {
		if _, err := Decode(b); err == nil {
			t.Fatalf("%s: expected ErrCorrupt", name)
		}
	}
}
