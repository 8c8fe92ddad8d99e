package core

import (
	"bytes"
	"math"
	"testing"
)

func newTestStringOps(t *testing.T) (*StringOps, *Database) {
	t.Helper()
	db := newTestDatabase(t)
	return NewStringOps(db, db.cfg), db
}

func TestStringOps_SetGet(t *testing.T) {
	ops, db := newTestStringOps(t)
	role := Primary()

	if err := ops.Set([]byte("k"), []byte("v"), SetAlways, role, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok := db.LookupRead([]byte("k"), ReadFlags{}, role)
	if !ok || string(v.Bytes()) != "v" {
		t.Fatalf("GET after SET: got %v, %v", v, ok)
	}
}

func TestStringOps_SetNXXX(t *testing.T) {
	ops, _ := newTestStringOps(t)
	role := Primary()

	if err := ops.Set([]byte("k"), []byte("v1"), SetXX, role, 0); err != ErrXXFailed {
		t.Errorf("XX on absent key: got %v want ErrXXFailed", err)
	}
	if err := ops.Set([]byte("k"), []byte("v1"), SetNX, role, 0); err != nil {
		t.Fatalf("NX on absent key: %v", err)
	}
	if err := ops.Set([]byte("k"), []byte("v2"), SetNX, role, 0); err != ErrNXFailed {
		t.Errorf("NX on present key: got %v want ErrNXFailed", err)
	}
}

// TestStringOps_SetRangeOnAbsentKey is spec.md property 12.
func TestStringOps_SetRangeOnAbsentKey(t *testing.T) {
	ops, _ := newTestStringOps(t)
	role := Primary()

	n, err := ops.SetRange([]byte("k"), 3, []byte("foo"), role)
	if err != nil {
		t.Fatalf("SetRange: %v", err)
	}
	if n != 6 {
		t.Errorf("SetRange length: got %d want 6", n)
	}

	got, _ := ops.GetRange([]byte("k"), 0, -1, role)
	want := append([]byte{0, 0, 0}, []byte("foo")...)
	if !bytes.Equal(got, want) {
		t.Errorf("SetRange result: got %q want %q", got, want)
	}
}

func TestStringOps_SetRangeNegativeOffset(t *testing.T) {
	ops, _ := newTestStringOps(t)
	if _, err := ops.SetRange([]byte("k"), -1, []byte("x"), Primary()); err != ErrNegativeOffs {
		t.Errorf("negative offset: got %v want ErrNegativeOffs", err)
	}
}

func TestStringOps_GetRange(t *testing.T) {
	ops, _ := newTestStringOps(t)
	role := Primary()
	must(t, ops.Set([]byte("k"), []byte("Hello World"), SetAlways, role, 0))

	tests := []struct {
		start, end int
		want       string
	}{
		{0, 4, "Hello"},
		{-5, -1, "World"},
		{0, -1, "Hello World"},
		{5, 1, ""}, // inverted range
	}
	for _, tc := range tests {
		got, err := ops.GetRange([]byte("k"), tc.start, tc.end, role)
		if err != nil {
			t.Errorf("GetRange(%d,%d): %v", tc.start, tc.end, err)
			continue
		}
		if string(got) != tc.want {
			t.Errorf("GetRange(%d,%d): got %q want %q", tc.start, tc.end, got, tc.want)
		}
	}
}

// TestStringOps_IncrOverflow is spec.md E4 / property 11.
func TestStringOps_IncrOverflow(t *testing.T) {
	ops, db := newTestStringOps(t)
	role := Primary()

	must(t, ops.Set([]byte("n"), []byte("9223372036854775806"), SetAlways, role, 0))

	got, err := ops.IncrBy([]byte("n"), 1, role)
	if err != nil {
		t.Fatalf("IncrBy to max: %v", err)
	}
	if got != math.MaxInt64 {
		t.Errorf("IncrBy: got %d want %d", got, int64(math.MaxInt64))
	}

	_, err = ops.IncrBy([]byte("n"), 1, role)
	if err != ErrOverflow {
		t.Errorf("IncrBy past max: got %v want ErrOverflow", err)
	}

	v, _ := db.LookupRead([]byte("n"), ReadFlags{}, role)
	if string(v.Bytes()) != "9223372036854775807" {
		t.Errorf("value after failed overflow: got %q, must be unchanged", v.Bytes())
	}
}

func TestStringOps_IncrByFloat(t *testing.T) {
	ops, _ := newTestStringOps(t)
	role := Primary()
	must(t, ops.Set([]byte("f"), []byte("10.5"), SetAlways, role, 0))

	got, err := ops.IncrByFloat([]byte("f"), 0.1, role)
	if err != nil {
		t.Fatalf("IncrByFloat: %v", err)
	}
	if got != 10.6 {
		t.Errorf("IncrByFloat: got %v want 10.6", got)
	}
}

func TestStringOps_IncrByFloat_RejectsNonFinite(t *testing.T) {
	ops, _ := newTestStringOps(t)
	if _, err := ops.IncrByFloat([]byte("f"), math.Inf(1), Primary()); err != ErrNotFinite {
		t.Errorf("Inf delta: got %v want ErrNotFinite", err)
	}
	if _, err := ops.IncrByFloat([]byte("f"), math.NaN(), Primary()); err != ErrNotFinite {
		t.Errorf("NaN delta: got %v want ErrNotFinite", err)
	}
}

func TestStringOps_Append(t *testing.T) {
	ops, db := newTestStringOps(t)
	role := Primary()

	n, err := ops.Append([]byte("k"), []byte("Hello "), role)
	if err != nil || n != 6 {
		t.Fatalf("Append to absent key: n=%d err=%v", n, err)
	}
	n, err = ops.Append([]byte("k"), []byte("World"), role)
	if err != nil || n != 11 {
		t.Fatalf("Append to existing key: n=%d err=%v", n, err)
	}

	v, _ := db.LookupRead([]byte("k"), ReadFlags{}, role)
	if string(v.Bytes()) != "Hello World" {
		t.Errorf("Append result: got %q", v.Bytes())
	}
}

func TestStringOps_Append_DoesNotMutateSharedValue(t *testing.T) {
	ops, db := newTestStringOps(t)
	role := Primary()

	must(t, ops.Set([]byte("k"), []byte(string(make([]byte, 50))), SetAlways, role, 0))
	v, _ := db.LookupWrite([]byte("k"), role)
	v.IncRef() // simulate a second owner, e.g. a MULTI/EXEC snapshot

	originalLen := len(v.Bytes())
	if _, err := ops.Append([]byte("k"), []byte("!"), role); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if len(v.Bytes()) != originalLen {
		t.Error("Append mutated a shared value in place")
	}
}

func TestStringOps_MGetMSetMSetNX(t *testing.T) {
	ops, _ := newTestStringOps(t)
	role := Primary()

	if err := ops.MSet([][]byte{[]byte("a"), []byte("1"), []byte("b"), []byte("2")}, role); err != nil {
		t.Fatalf("MSet: %v", err)
	}

	got, err := ops.MGet([][]byte{[]byte("a"), []byte("b"), []byte("missing")}, role)
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if string(got[0]) != "1" || string(got[1]) != "2" || got[2] != nil {
		t.Errorf("MGet: got %q", got)
	}

	ok, err := ops.MSetNX([][]byte{[]byte("a"), []byte("3"), []byte("c"), []byte("4")}, role)
	if err != nil {
		t.Fatalf("MSetNX: %v", err)
	}
	if ok {
		t.Error("MSetNX with an existing destination key: got true want false")
	}

	ok, err = ops.MSetNX([][]byte{[]byte("c"), []byte("4"), []byte("d"), []byte("5")}, role)
	if err != nil || !ok {
		t.Fatalf("MSetNX on fresh keys: ok=%v err=%v", ok, err)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
