package core

import (
	"fmt"
	"testing"
	"time"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	return NewDatabase(0, DefaultConfig(), NopHooks{}, NewReclaimer())
}

func TestDatabase_AddLookupExists(t *testing.T) {
	db := newTestDatabase(t)
	role := Primary()

	db.Add([]byte("k"), NewString([]byte("v")))

	v, ok := db.LookupRead([]byte("k"), ReadFlags{}, role)
	if !ok || string(v.Bytes()) != "v" {
		t.Fatalf("LookupRead: got %v, %v", v, ok)
	}
	if !db.Exists([]byte("k")) {
		t.Error("Exists: got false, want true")
	}
	if db.Exists([]byte("missing")) {
		t.Error("Exists(missing): got true, want false")
	}
}

// TestDatabase_E1 is spec.md E1.
func TestDatabase_E1(t *testing.T) {
	db := newTestDatabase(t)
	role := Primary()

	db.Set([]byte("foo"), NewString([]byte("bar")))

	v, ok := db.LookupRead([]byte("foo"), ReadFlags{}, role)
	if !ok || string(v.Bytes()) != "bar" {
		t.Fatalf("GET foo: got %v, %v", v, ok)
	}

	existCount := 0
	for _, k := range []string{"foo", "foo", "missing"} {
		if db.Exists([]byte(k)) {
			existCount++
		}
	}
	if existCount != 2 {
		t.Errorf("EXISTS foo foo missing: got %d want 2", existCount)
	}

	if !db.DeleteSync([]byte("foo")) {
		t.Error("DEL foo: got false want true")
	}
	if _, ok := db.LookupRead([]byte("foo"), ReadFlags{}, role); ok {
		t.Error("GET foo after DEL: still present")
	}
}

// TestDatabase_ExpirationOnPrimary is spec.md property 7 / scenario E2.
func TestDatabase_ExpirationOnPrimary(t *testing.T) {
	db := newTestDatabase(t)
	role := Primary()

	db.Add([]byte("k"), NewString([]byte("v")))
	db.SetExpire([]byte("k"), time.Now().Add(-time.Second).UnixMilli())

	_, ok := db.LookupRead([]byte("k"), ReadFlags{}, role)
	if ok {
		t.Error("expired key still readable")
	}
	if db.Exists([]byte("k")) {
		t.Error("expired key still in main after a primary read")
	}
}

// TestDatabase_ExpirationOnReplica is spec.md property 8.
func TestDatabase_ExpirationOnReplica(t *testing.T) {
	db := newTestDatabase(t)
	replica := Replica(false)

	db.Add([]byte("k"), NewString([]byte("v")))
	db.SetExpire([]byte("k"), time.Now().Add(-time.Second).UnixMilli())

	_, ok := db.LookupRead([]byte("k"), ReadFlags{}, replica)
	if ok {
		t.Error("replica: logically-expired key returned as present")
	}

	// the key must still be physically present: only the primary deletes.
	_, i := db.findLocked([]byte("k"))
	if i < 0 {
		t.Error("replica read must not have deleted the key")
	}
}

func TestDatabase_Overwrite(t *testing.T) {
	db := newTestDatabase(t)
	role := Primary()

	db.Add([]byte("k"), NewString([]byte("v1")))
	db.SetExpire([]byte("k"), time.Now().Add(time.Hour).UnixMilli())

	db.Overwrite([]byte("k"), NewString([]byte("v2")))

	v, _ := db.LookupRead([]byte("k"), ReadFlags{}, role)
	if string(v.Bytes()) != "v2" {
		t.Errorf("Overwrite: got %q want v2", v.Bytes())
	}
	if _, ok := db.GetExpire([]byte("k")); !ok {
		t.Error("Overwrite must preserve the existing TTL")
	}
}

func TestDatabase_Set_ClearsExpire(t *testing.T) {
	db := newTestDatabase(t)

	db.Add([]byte("k"), NewString([]byte("v1")))
	db.SetExpire([]byte("k"), time.Now().Add(time.Hour).UnixMilli())

	db.Set([]byte("k"), NewString([]byte("v2")))

	if _, ok := db.GetExpire([]byte("k")); ok {
		t.Error("Set must clear any prior TTL")
	}
}

func TestDatabase_RemoveExpire(t *testing.T) {
	db := newTestDatabase(t)
	db.Add([]byte("k"), NewString([]byte("v")))
	db.SetExpire([]byte("k"), time.Now().Add(time.Hour).UnixMilli())

	if !db.RemoveExpire([]byte("k")) {
		t.Fatal("RemoveExpire: got false want true")
	}
	if _, ok := db.GetExpire([]byte("k")); ok {
		t.Error("RemoveExpire did not clear the deadline")
	}
	if db.RemoveExpire([]byte("k")) {
		t.Error("RemoveExpire on a persistent key: got true want false")
	}
}

func TestDatabase_DeleteLazy(t *testing.T) {
	db := newTestDatabase(t)
	db.Add([]byte("k"), NewString([]byte("v")))

	if !db.DeleteLazy([]byte("k")) {
		t.Fatal("DeleteLazy: got false want true")
	}
	if db.Exists([]byte("k")) {
		t.Error("DeleteLazy must unlink synchronously")
	}
}

// TestDatabase_ScanCompleteness is spec.md property 9 / scenario E5.
func TestDatabase_ScanCompleteness(t *testing.T) {
	db := newTestDatabase(t)
	const n = 1000
	for i := 0; i < n; i++ {
		db.Add([]byte(fmt.Sprintf("k%d", i)), NewString([]byte("1")))
	}

	seen := make(map[string]bool, n)
	cursor := uint64(0)
	iterations := 0
	for {
		var keys [][]byte
		cursor, keys = db.Scan(cursor, "", 10)
		for _, k := range keys {
			seen[string(k)] = true
		}
		iterations++
		if cursor == 0 {
			break
		}
		if iterations > n*10 {
			t.Fatal("scan did not terminate")
		}
	}

	for i := 0; i < n; i++ {
		key := fmt.Sprintf("k%d", i)
		if !seen[key] {
			t.Errorf("scan missed key %q", key)
		}
	}
}

func TestDatabase_RandomKey(t *testing.T) {
	db := newTestDatabase(t)
	if _, ok := db.RandomKey(); ok {
		t.Error("RandomKey on empty database: got true")
	}

	db.Add([]byte("only"), NewString([]byte("v")))
	k, ok := db.RandomKey()
	if !ok || string(k) != "only" {
		t.Errorf("RandomKey: got %q, %v", k, ok)
	}
}

func TestDatabase_Swap(t *testing.T) {
	a := newTestDatabase(t)
	b := NewDatabase(1, DefaultConfig(), NopHooks{}, NewReclaimer())

	a.Add([]byte("a-key"), NewString([]byte("a-val")))
	b.Add([]byte("b-key"), NewString([]byte("b-val")))

	a.Swap(b)

	if !a.Exists([]byte("b-key")) || a.Exists([]byte("a-key")) {
		t.Error("Swap: database a does not hold b's former contents")
	}
	if !b.Exists([]byte("a-key")) || b.Exists([]byte("b-key")) {
		t.Error("Swap: database b does not hold a's former contents")
	}
}

func TestDatabase_Empty(t *testing.T) {
	db := newTestDatabase(t)
	db.Add([]byte("a"), NewString([]byte("1")))
	db.Add([]byte("b"), NewString([]byte("2")))

	count := db.Empty(false, nil)
	if count != 2 {
		t.Errorf("Empty: got count %d want 2", count)
	}
	if db.Count() != 0 {
		t.Errorf("Empty: database not empty, count = %d", db.Count())
	}
}

func TestDatabase_BucketsResize(t *testing.T) {
	db := newTestDatabase(t)
	initial := db.BucketCount()

	for i := 0; i < 1000; i++ {
		db.Add([]byte(fmt.Sprintf("k%d", i)), NewString([]byte("1")))
	}
	if db.BucketCount() <= initial {
		t.Errorf("BucketCount() after growth: got %d, want > %d", db.BucketCount(), initial)
	}

	for i := 0; i < 1000; i++ {
		db.DeleteSync([]byte(fmt.Sprintf("k%d", i)))
	}
	if db.BucketCount() != initialBucketCount {
		t.Errorf("BucketCount() after shrink: got %d want %d", db.BucketCount(), initialBucketCount)
	}
}
