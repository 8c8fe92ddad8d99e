package core

import (
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/mshaverdo/assert"
)

// ValueType is the logical datatype of a Value, per spec.md §3.
type ValueType int

const (
	TypeString ValueType = iota
	TypeList
	TypeSet
	TypeHash
	TypeZSet
	TypeModule
)

// Encoding is the physical representation backing a Value.
type Encoding int

const (
	EncRaw Encoding = iota
	EncInt
	EncEmbstr
	EncZiplist
	EncLinkedList
	EncHashtable
	EncIntset
	EncSkiplist
)

// accessMetaKind distinguishes which half of access_meta is live.
type accessMetaKind int

const (
	metaLRU accessMetaKind = iota
	metaLFU
)

const (
	lfuInitVal    = 5
	lfuMaxVal     = 255
	lfuDecayMinutes = 1 // minutes per decay tick, see §4.3
)

// Value is the tagged value object of spec.md §4.3: type, encoding, a
// manual refcount, an access-metadata word, and a payload interpreted
// according to encoding. Grounded on core/item.go's kind/str/list/dict
// tagged-union shape in the teacher, generalized with the refcount and
// access_meta spec.md adds.
type Value struct {
	typ      ValueType
	encoding Encoding
	refcount int32

	metaKind accessMetaKind
	accessAt uint32 // LRU: seconds clock. LFU: minutes since epoch-ish base.
	lfuCount uint8  // meaningful only when metaKind == metaLFU

	// Exactly one of the following is populated, selected by encoding.
	raw  []byte
	ival int64
	zl   *Ziplist
	list *DList
	dict map[string][]byte
}

// NewString constructs a string Value, choosing EncInt for a value that
// round-trips as a canonical decimal int64 (returning the shared
// singleton when it is in the small-integer pool's range), EncEmbstr for
// a short buffer, EncRaw otherwise -- exactly the three string encodings
// spec.md §3 names.
func NewString(raw []byte) *Value {
	if v, ok := parseStrictInt(raw); ok {
		if shared := sharedInt(v); shared != nil {
			return shared
		}
		return &Value{typ: TypeString, encoding: EncInt, refcount: 1, ival: v}
	}
	enc := EncEmbstr
	if len(raw) > embstrMaxLen {
		enc = EncRaw
	}
	buf := make([]byte, len(raw))
	copy(buf, raw)
	return &Value{typ: TypeString, encoding: enc, refcount: 1, raw: buf}
}

const embstrMaxLen = 44 // matches the teacher's 44-byte short-string boundary idiom

// NewList constructs a list Value, starting in the ziplist encoding
// when every element is within the configured thresholds, upgrading to
// a DList of elements otherwise -- the list/hash/zset upgrade rule of
// spec.md §3 ("a list is either a ziplist or a linked list").
func NewList(elements [][]byte, cfg Config) *Value {
	if fitsZiplistThresholds(elements, cfg) {
		zl := NewZiplist()
		for _, e := range elements {
			zl = zl.Push(e, Tail)
		}
		return &Value{typ: TypeList, encoding: EncZiplist, refcount: 1, zl: zl}
	}

	l := NewDList()
	for _, e := range elements {
		l.PushTail(append([]byte(nil), e...))
	}
	return &Value{typ: TypeList, encoding: EncLinkedList, refcount: 1, list: l}
}

// NewHash constructs a hash Value, mirroring the same ziplist/hashtable
// upgrade rule as NewList.
func NewHash(fields map[string][]byte, cfg Config) *Value {
	if len(fields) <= cfg.ZiplistEntryThreshold && fitsZiplistValueThreshold(fields, cfg) {
		zl := NewZiplist()
		for k, val := range fields {
			zl = zl.Push([]byte(k), Tail)
			zl = zl.Push(val, Tail)
		}
		return &Value{typ: TypeHash, encoding: EncZiplist, refcount: 1, zl: zl}
	}

	dict := make(map[string][]byte, len(fields))
	for k, val := range fields {
		dict[k] = append([]byte(nil), val...)
	}
	return &Value{typ: TypeHash, encoding: EncHashtable, refcount: 1, dict: dict}
}

func fitsZiplistThresholds(elements [][]byte, cfg Config) bool {
	if len(elements) > cfg.ZiplistEntryThreshold {
		return false
	}
	for _, e := range elements {
		if len(e) > cfg.ZiplistValueThreshold {
			return false
		}
	}
	return true
}

func fitsZiplistValueThreshold(fields map[string][]byte, cfg Config) bool {
	for k, v := range fields {
		if len(k) > cfg.ZiplistValueThreshold || len(v) > cfg.ZiplistValueThreshold {
			return false
		}
	}
	return true
}

// Ziplist exposes the ziplist payload for list/hash/zset values encoded
// as EncZiplist.
func (v *Value) Ziplist() *Ziplist {
	assert.True(v.encoding == EncZiplist, "Value.Ziplist(): not ziplist-encoded")
	return v.zl
}

// List exposes the DList payload for EncLinkedList values.
func (v *Value) List() *DList {
	assert.True(v.encoding == EncLinkedList, "Value.List(): not linked-list-encoded")
	return v.list
}

// Dict exposes the hashtable payload for EncHashtable values.
func (v *Value) Dict() map[string][]byte {
	assert.True(v.encoding == EncHashtable, "Value.Dict(): not hashtable-encoded")
	return v.dict
}

// Type reports the value's logical datatype.
func (v *Value) Type() ValueType { return v.typ }

// Encoding reports the value's physical representation.
func (v *Value) Encoding() Encoding { return v.encoding }

// Refcount returns the current share count.
func (v *Value) Refcount() int32 { return v.refcount }

// IncRef increments the share count. Shared singletons saturate instead
// of overflowing.
func (v *Value) IncRef() {
	if v.refcount == sharedSentinelRefcount {
		return
	}
	v.refcount++
}

// DecRef decrements the share count.
func (v *Value) DecRef() {
	if v.refcount == sharedSentinelRefcount {
		return
	}
	assert.True(v.refcount > 0, "Value.DecRef(): refcount underflow")
	v.refcount--
}

// Bytes returns the string payload, decoding an int-encoded value to
// its canonical decimal text on demand.
func (v *Value) Bytes() []byte {
	assert.True(v.typ == TypeString, "Value.Bytes(): not a string value")
	if v.encoding == EncInt {
		return []byte(strconv.FormatInt(v.ival, 10))
	}
	return v.raw
}

// Int returns the int64 payload of an EncInt value.
func (v *Value) Int() int64 {
	assert.True(v.encoding == EncInt, "Value.Int(): not an int-encoded value")
	return v.ival
}

// MakeUnique returns a value guaranteed safe to mutate in place: if v is
// shared (refcount > 1) or not a plain raw buffer, it returns a deep
// copy with refcount 1 and EncRaw; otherwise it returns v itself.
// Mutating operations in StringOps always route through this first, per
// spec.md's invariant "a value with refcount > 1 is immutable".
func (v *Value) MakeUnique() *Value {
	if v.refcount == 1 && v.encoding == EncRaw {
		return v
	}
	buf := make([]byte, len(v.Bytes()))
	copy(buf, v.Bytes())
	return &Value{typ: TypeString, encoding: EncRaw, refcount: 1, raw: buf}
}

// Clone copies v regardless of sharing state, with refcount 1. The raw
// string buffer is duplicated; ziplist, list and dict payloads are
// shared with v, not copied.
func (v *Value) Clone() *Value {
	clone := *v
	clone.refcount = 1
	if v.raw != nil {
		clone.raw = append([]byte(nil), v.raw...)
	}
	return &clone
}

// --- Access metadata -------------------------------------------------

// TouchLRU recomputes the LRU clock to now.
func (v *Value) TouchLRU(now time.Time) {
	v.metaKind = metaLRU
	v.accessAt = uint32(now.Unix())
}

// TouchLFU applies the decay-then-probabilistic-increment rule of
// spec.md §4.3: decay the counter by floor(elapsed_minutes/decayPeriod),
// then bump it with probability 1/((counter-base)*factor+1), then
// rewrite the access-time half.
func (v *Value) TouchLFU(now time.Time, decayPeriodMinutes int, factor float64) {
	nowMinutes := uint32(now.Unix() / 60)
	if v.metaKind != metaLFU {
		v.metaKind = metaLFU
		v.lfuCount = lfuInitVal
		v.accessAt = nowMinutes
		return
	}

	if decayPeriodMinutes > 0 {
		elapsed := nowMinutes - v.accessAt
		decaySteps := elapsed / uint32(decayPeriodMinutes)
		if uint32(v.lfuCount) > decaySteps {
			v.lfuCount -= uint8(decaySteps)
		} else {
			v.lfuCount = 0
		}
	}

	if v.lfuCount < lfuMaxVal {
		base := float64(0)
		p := 1.0 / ((float64(v.lfuCount)-base)*factor + 1)
		if rand.Float64() < p {
			v.lfuCount++
		}
	}

	v.accessAt = nowMinutes
}

// LFUCount returns the current LFU counter value.
func (v *Value) LFUCount() uint8 { return v.lfuCount }

// LRUSeconds returns the current LRU clock value.
func (v *Value) LRUSeconds() uint32 { return v.accessAt }

// --- Shared small-integer pool ---------------------------------------

const sharedSentinelRefcount = math.MaxInt32

var sharedIntPool [10000]*Value

func init() {
	for i := range sharedIntPool {
		sharedIntPool[i] = &Value{
			typ:      TypeString,
			encoding: EncInt,
			refcount: sharedSentinelRefcount,
			ival:     int64(i),
		}
	}
}

// sharedInt returns the process-wide singleton Value for v, or nil if
// v is out of the shared pool's range. The pool is a fixed 10000-entry
// array (indices 0..9999); Config.SmallIntegerSharedMax does not change
// its size.
func sharedInt(v int64) *Value {
	if v < 0 || v >= int64(len(sharedIntPool)) {
		return nil
	}
	return sharedIntPool[v]
}

// IsShared reports whether v is a shared singleton value, never freed
// and never mutated in place.
func (v *Value) IsShared() bool { return v.refcount == sharedSentinelRefcount }
