package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/mshaverdo/assert"
)

// Errors StringOps returns. Grounded on the teacher's plain sentinel
// errors in core/hashengine.go (errKeyNotFound and friends) rather than
// a custom error hierarchy.
var (
	ErrWrongType    = errors.New("core: value is not string-encoded")
	ErrNotFound     = errors.New("core: key not found")
	ErrNXFailed     = errors.New("core: NX set failed, key exists")
	ErrXXFailed     = errors.New("core: XX set failed, key absent")
	ErrNotInteger   = errors.New("core: value is not an integer")
	ErrNotFloat     = errors.New("core: value is not a float")
	ErrOverflow     = errors.New("core: increment would overflow")
	ErrNotFinite    = errors.New("core: increment result is not finite")
	ErrTooLarge     = errors.New("core: resulting string exceeds the maximum length")
	ErrNegativeOffs = errors.New("core: offset is negative")
)

// SetFlag constrains `set` to NX (only if absent) or XX (only if
// present) semantics.
type SetFlag int

const (
	SetAlways SetFlag = iota
	SetNX
	SetXX
)

// StringOps implements spec.md §4.5: every string-value command, each
// sharing the same type-check / unshare / 512MiB-cap discipline and the
// same three-hook write-path protocol (via Database.SignalWrite).
// Grounded on the teacher's HashEngine command-method shape in
// core/hashengine.go, generalized onto the new Value/Database layer.
type StringOps struct {
	db  *Database
	cfg Config
}

// NewStringOps binds a StringOps to one database.
func NewStringOps(db *Database, cfg Config) *StringOps {
	return &StringOps{db: db, cfg: cfg}
}

func (s *StringOps) checkString(v *Value) error {
	if v.Type() != TypeString {
		return ErrWrongType
	}
	return nil
}

func (s *StringOps) checkSize(n int) error {
	if n > s.cfg.MaxStringSize {
		return ErrTooLarge
	}
	return nil
}

// Set implements `set(db, key, val, flag, ttlMs?)`. ttlMs is an absolute
// deadline in Unix milliseconds, installed via SetExpire; ttlMs <= 0
// means no expiration is installed.
func (s *StringOps) Set(key, val []byte, flag SetFlag, role Role, ttlMs int64) error {
	if err := s.checkSize(len(val)); err != nil {
		return err
	}

	_, exists := s.db.LookupWrite(key, role)
	switch flag {
	case SetNX:
		if exists {
			return ErrNXFailed
		}
	case SetXX:
		if !exists {
			return ErrXXFailed
		}
	}

	v := NewString(val)
	s.db.Set(key, v)
	if ttlMs > 0 {
		s.db.SetExpire(key, ttlMs)
	}

	s.db.SignalWrite(key, EventCategoryString, "set", [][]byte{[]byte("SET"), key, val})
	return nil
}

// SetRange implements `setrange(db, key, offset, bytes)`: zero-fills up
// to offset, writes bytes, returns the final length.
func (s *StringOps) SetRange(key []byte, offset int, bytes []byte, role Role) (int, error) {
	if offset < 0 {
		return 0, ErrNegativeOffs
	}

	v, exists := s.db.LookupWrite(key, role)
	var cur []byte
	if exists {
		if err := s.checkString(v); err != nil {
			return 0, err
		}
		cur = v.Bytes()
	}

	finalLen := offset + len(bytes)
	if finalLen < len(cur) {
		finalLen = len(cur)
	}
	if err := s.checkSize(finalLen); err != nil {
		return 0, err
	}

	buf := make([]byte, finalLen)
	copy(buf, cur)
	copy(buf[offset:], bytes)

	nv := NewString(buf)
	if exists {
		s.db.Overwrite(key, nv)
	} else {
		s.db.Add(key, nv)
	}

	s.db.SignalWrite(key, EventCategoryString, "setrange", [][]byte{[]byte("SETRANGE"), key})
	return finalLen, nil
}

// GetRange implements `getrange(db, key, start, end)`: an inclusive
// byte slice with negative indices counted from the end, clamped to
// bounds, empty on an inverted range.
func (s *StringOps) GetRange(key []byte, start, end int, role Role) ([]byte, error) {
	v, exists := s.db.LookupRead(key, ReadFlags{}, role)
	if !exists {
		return nil, nil
	}
	if err := s.checkString(v); err != nil {
		return nil, err
	}

	raw := v.Bytes()
	n := len(raw)

	start = clampIndex(start, n)
	end = clampIndex(end, n)

	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if start > end || n == 0 {
		return []byte{}, nil
	}
	out := make([]byte, end-start+1)
	copy(out, raw[start:end+1])
	return out, nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	return i
}

// IncrBy implements `incr_by(db, key, delta)`: parses the existing
// value (or treats absence as 0) as a canonical decimal integer,
// rejects overflow, writes back. When the current object's refcount is
// 1 and the result falls outside the shared small-integer pool, the
// existing storage is reused in place rather than allocating fresh.
func (s *StringOps) IncrBy(key []byte, delta int64, role Role) (int64, error) {
	v, exists := s.db.LookupWrite(key, role)

	var cur int64
	if exists {
		if err := s.checkString(v); err != nil {
			return 0, err
		}
		n, ok := parseStrictInt(v.Bytes())
		if !ok {
			return 0, ErrNotInteger
		}
		cur = n
	}

	if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
		return 0, ErrOverflow
	}
	result := cur + delta

	if exists && v.refcount == 1 && v.encoding == EncInt && sharedInt(result) == nil {
		v.ival = result
	} else {
		s.db.Set(key, NewString([]byte(strconv.FormatInt(result, 10))))
	}

	s.db.SignalWrite(key, EventCategoryString, "incrby", [][]byte{[]byte("INCRBY"), key})
	return result, nil
}

// IncrByFloat implements `incr_by_float(db, key, delta)`: parses the
// existing value as a double, rejects a NaN/Inf delta or result.
func (s *StringOps) IncrByFloat(key []byte, delta float64, role Role) (float64, error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return 0, ErrNotFinite
	}

	v, exists := s.db.LookupWrite(key, role)
	var cur float64
	if exists {
		if err := s.checkString(v); err != nil {
			return 0, err
		}
		n, err := strconv.ParseFloat(string(v.Bytes()), 64)
		if err != nil {
			return 0, ErrNotFloat
		}
		cur = n
	}

	result := cur + delta
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, ErrNotFinite
	}

	text := strconv.FormatFloat(result, 'f', -1, 64)
	s.db.Set(key, NewString([]byte(text)))

	s.db.SignalWrite(key, EventCategoryString, "incrbyfloat", [][]byte{[]byte("INCRBYFLOAT"), key})
	return result, nil
}

// Append implements `append(db, key, bytes)`: creates the key if
// absent, otherwise unshares the existing value via MakeUnique and
// concatenates in place.
func (s *StringOps) Append(key, bytes []byte, role Role) (int, error) {
	v, exists := s.db.LookupWrite(key, role)
	if !exists {
		if err := s.checkSize(len(bytes)); err != nil {
			return 0, err
		}
		s.db.Add(key, NewString(bytes))
		s.db.SignalWrite(key, EventCategoryString, "append", [][]byte{[]byte("APPEND"), key, bytes})
		return len(bytes), nil
	}

	if err := s.checkString(v); err != nil {
		return 0, err
	}

	unique := v.MakeUnique()
	newLen := len(unique.raw) + len(bytes)
	if err := s.checkSize(newLen); err != nil {
		return 0, err
	}
	unique.raw = append(unique.raw, bytes...)
	if unique != v {
		s.db.Overwrite(key, unique)
	}

	s.db.SignalWrite(key, EventCategoryString, "append", [][]byte{[]byte("APPEND"), key, bytes})
	return newLen, nil
}

// MGet fetches multiple keys, reporting absence per-key rather than
// failing the whole batch.
func (s *StringOps) MGet(keys [][]byte, role Role) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, exists := s.db.LookupRead(k, ReadFlags{}, role)
		if !exists {
			continue
		}
		if v.Type() != TypeString {
			out[i] = nil
			continue
		}
		out[i] = v.Bytes()
	}
	return out, nil
}

// MSet unconditionally writes every (key, value) pair. pairs must have
// even length.
func (s *StringOps) MSet(pairs [][]byte, role Role) error {
	assert.True(len(pairs)%2 == 0, "StringOps.MSet(): odd pair count")

	for i := 0; i < len(pairs); i += 2 {
		if err := s.checkSize(len(pairs[i+1])); err != nil {
			return fmt.Errorf("mset key %q: %w", pairs[i], err)
		}
	}
	for i := 0; i < len(pairs); i += 2 {
		key, val := pairs[i], pairs[i+1]
		s.db.Set(key, NewString(val))
		s.db.SignalWrite(key, EventCategoryString, "set", [][]byte{[]byte("SET"), key, val})
	}
	return nil
}

// MSetNX writes every pair only if none of the destination keys exist;
// it is all-or-nothing, checking presence before writing any.
func (s *StringOps) MSetNX(pairs [][]byte, role Role) (bool, error) {
	assert.True(len(pairs)%2 == 0, "StringOps.MSetNX(): odd pair count")

	for i := 0; i < len(pairs); i += 2 {
		if s.db.Exists(pairs[i]) {
			return false, nil
		}
	}
	if err := s.MSet(pairs, role); err != nil {
		return false, err
	}
	return true, nil
}
