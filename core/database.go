package core

import (
	"math/bits"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/mshaverdo/assert"
	"github.com/radishdb/keyspace/log"
)

const (
	initialBucketCount = 16
	growLoadFactor      = 2.0
	shrinkLoadFactor    = 0.25
)

// dbEntry is one slot in a bucket's chain. Keys are owned here; the
// expires table is keyed by a string copy of the key bytes.
type dbEntry struct {
	key   []byte
	value *Value
}

// Database is the keyspace engine of spec.md §4.4: two hash tables
// (main, expires) plus the three auxiliary tables consumed only via
// Hooks. Grounded on the teacher's StorageHash (sharded bucket array,
// xxhash routing) generalized to a resizable power-of-two bucket count,
// which spec.md's SCAN algorithm (reversed-bit cursor increment across
// resizes) requires. A single RWMutex replaces StorageHash's per-bucket
// locks: spec.md §5 makes the whole engine single-threaded cooperative,
// so per-bucket write parallelism buys nothing, while SCAN needs a
// globally consistent bucket array during each step.
type Database struct {
	mu sync.RWMutex

	id  int
	cfg Config

	buckets [][]dbEntry
	count   int

	expires map[string]int64 // key string -> absolute deadline, ms

	// Auxiliary tables: only their presence is tracked here. The actual
	// transaction-watch / blocking-client semantics live entirely on
	// the other side of Hooks, per spec.md §3.
	watched  map[string]struct{}
	blocking map[string]struct{}
	ready    map[string]struct{}

	avgTTL float64

	hooks     Hooks
	reclaimer *Reclaimer

	hits, misses int64
	expiredCount int64
	dirtyCount   int64
}

// NewDatabase constructs an empty Database with the given id.
func NewDatabase(id int, cfg Config, hooks Hooks, reclaimer *Reclaimer) *Database {
	return &Database{
		id:       id,
		cfg:      cfg,
		buckets:  make([][]dbEntry, initialBucketCount),
		expires:  make(map[string]int64),
		watched:  make(map[string]struct{}),
		blocking: make(map[string]struct{}),
		ready:    make(map[string]struct{}),
		hooks:    hooks,
		reclaimer: reclaimer,
	}
}

// ID returns the database's index in the engine's database array.
func (db *Database) ID() int { return db.id }

func bucketHash(key []byte) uint64 { return xxhash.Checksum64(key) }

func (db *Database) bucketIndex(key []byte) int {
	mask := uint64(len(db.buckets) - 1)
	return int(bucketHash(key) & mask)
}

func (db *Database) findLocked(key []byte) (int, int) {
	b := db.bucketIndex(key)
	for i, e := range db.buckets[b] {
		if string(e.key) == string(key) {
			return b, i
		}
	}
	return b, -1
}

// ReadFlags modifies lookup_read's touch behavior.
type ReadFlags struct {
	// NoTouch suppresses the access_meta update.
	NoTouch bool
}

// LookupRead implements spec.md §4.4 lookup_read: triggers lazy
// expiration, updates hit/miss counters, and updates access_meta unless
// NoTouch is set or a snapshot child is active.
func (db *Database) LookupRead(key []byte, flags ReadFlags, role Role) (*Value, bool) {
	db.expireIfNeededLocking(key, role)

	db.mu.Lock()
	defer db.mu.Unlock()

	if role.Kind == RoleReplica && !role.IsReplicationLink {
		// a read-only client on a replica must not observe a
		// logically-expired key before the primary's DEL arrives via
		// replication, even though it isn't physically deleted yet.
		if deadline, ok := db.expires[string(key)]; ok && role.now().UnixMilli() > deadline {
			db.misses++
			keyspaceMisses.Inc()
			return nil, false
		}
	}

	b, i := db.findLocked(key)
	if i < 0 {
		db.misses++
		keyspaceMisses.Inc()
		return nil, false
	}

	v := db.buckets[b][i].value
	db.hits++
	keyspaceHits.Inc()

	if !flags.NoTouch && !db.hooks.IsSnapshotChildActive() {
		db.touch(v)
	}

	return v, true
}

func (db *Database) touch(v *Value) {
	now := time.Now()
	if db.cfg.MaxmemoryPolicy == PolicyLFU {
		v.TouchLFU(now, 1, 1.0)
	} else {
		v.TouchLRU(now)
	}
}

// LookupWrite implements lookup_write: triggers lazy expiration, never
// touches access_meta.
func (db *Database) LookupWrite(key []byte, role Role) (*Value, bool) {
	db.expireIfNeededLocking(key, role)

	db.mu.RLock()
	defer db.mu.RUnlock()
	b, i := db.findLocked(key)
	if i < 0 {
		return nil, false
	}
	return db.buckets[b][i].value, true
}

// Add inserts a fresh key. Precondition: key not already present.
func (db *Database) Add(key []byte, v *Value) {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, i := db.findLocked(key)
	assert.True(i < 0, "Database.Add(): key already present")

	ownKey := append([]byte(nil), key...)
	db.buckets[b] = append(db.buckets[b], dbEntry{key: ownKey, value: v})
	db.count++
	db.maybeGrowLocked()

	db.hooks.SlotIndexUpdate(string(key), SlotAdded)
}

// Overwrite replaces an existing key's value, preserving its expiration
// and carrying its access_meta onto the new value. Precondition: key
// present.
func (db *Database) Overwrite(key []byte, v *Value) {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, i := db.findLocked(key)
	assert.True(i >= 0, "Database.Overwrite(): key not present")

	old := db.buckets[b][i].value
	v.metaKind = old.metaKind
	v.accessAt = old.accessAt
	v.lfuCount = old.lfuCount

	db.buckets[b][i].value = v
}

// Set inserts or replaces key unconditionally, clearing any prior TTL.
func (db *Database) Set(key []byte, v *Value) {
	db.mu.Lock()
	b, i := db.findLocked(key)
	if i < 0 {
		ownKey := append([]byte(nil), key...)
		db.buckets[b] = append(db.buckets[b], dbEntry{key: ownKey, value: v})
		db.count++
		db.maybeGrowLocked()
	} else {
		db.buckets[b][i].value = v
	}
	delete(db.expires, string(key))
	db.mu.Unlock()

	db.hooks.SlotIndexUpdate(string(key), SlotAdded)
}

// SignalWrite runs the write-path hook sequence spec.md §4.6 mandates
// for every command that mutates the keyspace: signal_modified_key,
// notify_keyspace_event, propagate, then increment the dirty counter --
// in that order, after the mutation has already been applied. Hooks are
// best-effort: their failure, or absence, never unwinds the mutation
// that already happened.
func (db *Database) SignalWrite(key []byte, category KeyspaceEventCategory, event string, argv [][]byte) {
	db.hooks.SignalModifiedKey(db.id, string(key))
	db.hooks.NotifyKeyspaceEvent(category, event, string(key), db.id)
	db.hooks.Propagate(db.id, argv)
	db.bumpDirty()
}

// DeleteSync removes a key from expires then main, immediately.
func (db *Database) DeleteSync(key []byte) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.deleteSyncLocked(key)
}

func (db *Database) deleteSyncLocked(key []byte) bool {
	delete(db.expires, string(key))

	b, i := db.findLocked(key)
	if i < 0 {
		return false
	}
	chain := db.buckets[b]
	chain[i] = chain[len(chain)-1]
	db.buckets[b] = chain[:len(chain)-1]
	db.count--
	db.maybeShrinkLocked()

	db.hooks.SlotIndexUpdate(string(key), SlotRemoved)
	return true
}

// DeleteLazy removes a key from the index synchronously and hands its
// value off to the background reclaimer.
func (db *Database) DeleteLazy(key []byte) bool {
	db.mu.Lock()
	delete(db.expires, string(key))

	b, i := db.findLocked(key)
	if i < 0 {
		db.mu.Unlock()
		return false
	}
	v := db.buckets[b][i].value
	chain := db.buckets[b]
	chain[i] = chain[len(chain)-1]
	db.buckets[b] = chain[:len(chain)-1]
	db.count--
	db.maybeShrinkLocked()
	db.mu.Unlock()

	db.hooks.SlotIndexUpdate(string(key), SlotRemoved)
	db.reclaimer.Reclaim([]*Value{v})
	return true
}

// Delete removes key, choosing sync or lazy reclamation per
// Config.LazyfreeServerDel.
func (db *Database) Delete(key []byte) bool {
	if db.cfg.LazyfreeServerDel {
		return db.DeleteLazy(key)
	}
	return db.DeleteSync(key)
}

// Exists reports key's presence without updating access_meta.
func (db *Database) Exists(key []byte) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, i := db.findLocked(key)
	return i >= 0
}

// RandomKey samples main; if the sample is volatile, checks expiration.
// Bounds retries at 100 to avoid looping forever when every key is
// volatile and logically expired on a replica, returning the last
// sample in that case.
func (db *Database) RandomKey() ([]byte, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.count == 0 {
		return nil, false
	}

	var lastKey []byte
	for attempt := 0; attempt < 100; {
		b := rand.Intn(len(db.buckets))
		chain := db.buckets[b]
		if len(chain) == 0 {
			continue
		}
		attempt++
		e := chain[rand.Intn(len(chain))]
		lastKey = e.key

		deadline, volatile := db.expires[string(e.key)]
		if !volatile || time.Now().UnixMilli() <= deadline {
			return e.key, true
		}
	}
	return lastKey, lastKey != nil
}

// SetExpire installs an absolute millisecond deadline on key.
// Precondition: key present.
func (db *Database) SetExpire(key []byte, deadlineMs int64) {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, i := db.findLocked(key)
	assert.True(i >= 0, "Database.SetExpire(): key not present")

	db.expires[string(key)] = deadlineMs
	db.updateAvgTTLLocked(deadlineMs)
}

func (db *Database) updateAvgTTLLocked(deadlineMs int64) {
	ttl := float64(deadlineMs - time.Now().UnixMilli())
	if ttl < 0 {
		ttl = 0
	}
	const alpha = 0.1 // exponential moving average smoothing
	if db.avgTTL == 0 {
		db.avgTTL = ttl
	} else {
		db.avgTTL = db.avgTTL*(1-alpha) + ttl*alpha
	}
}

// GetExpire returns key's absolute deadline, if any.
func (db *Database) GetExpire(key []byte) (int64, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	d, ok := db.expires[string(key)]
	return d, ok
}

// RemoveExpire removes key's deadline, making it persistent again.
func (db *Database) RemoveExpire(key []byte) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.expires[string(key)]; !ok {
		return false
	}
	delete(db.expires, string(key))
	return true
}

// ExpireIfNeeded implements the expiration protocol of spec.md §4.4.
func (db *Database) ExpireIfNeeded(key []byte, role Role) bool {
	return db.expireIfNeededLocking(key, role)
}

func (db *Database) expireIfNeededLocking(key []byte, role Role) bool {
	db.mu.RLock()
	deadline, hasDeadline := db.expires[string(key)]
	db.mu.RUnlock()

	if !hasDeadline {
		return false
	}
	if role.Kind == RoleLoading {
		// deletions will be replayed; don't expire during load/replay.
		return false
	}

	now := role.now()
	expired := now.UnixMilli() > deadline

	if role.Kind == RoleReplica {
		// the replica reports the logical flag but never deletes; the
		// primary owns physical deletion and propagates it.
		return expired
	}

	if !expired {
		return false
	}

	db.expiredCount++
	keyspaceExpiredTotal.Inc()
	db.hooks.Propagate(db.id, [][]byte{[]byte("DEL"), key})
	db.hooks.NotifyKeyspaceEvent(EventCategoryExpired, "expired", string(key), db.id)

	if db.cfg.LazyfreeExpire {
		db.DeleteLazy(key)
	} else {
		db.DeleteSync(key)
	}
	return true
}

// Swap exchanges db's main/expires/avgTTL with other's, leaving
// watched/blocking/ready attached to their original ids, then rescans
// both databases so blocked-on-list clients whose key is now present
// get woken.
func (db *Database) Swap(other *Database) {
	first, second := db, other
	if first.id > second.id {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()
	defer second.mu.Unlock()
	defer first.mu.Unlock()

	db.buckets, other.buckets = other.buckets, db.buckets
	db.count, other.count = other.count, db.count
	db.expires, other.expires = other.expires, db.expires
	db.avgTTL, other.avgTTL = other.avgTTL, db.avgTTL

	for _, chain := range db.buckets {
		for _, e := range chain {
			db.hooks.SignalListReady(db.id, string(e.key))
		}
	}
	for _, chain := range other.buckets {
		for _, e := range chain {
			other.hooks.SignalListReady(other.id, string(e.key))
		}
	}
}

// Empty removes every key, returning the count removed. With
// asyncFlag, the tables are handed off to the background reclaimer
// instead of being dropped on the hot path.
func (db *Database) Empty(asyncFlag bool, progress func(done, total int)) int {
	db.mu.Lock()
	oldBuckets := db.buckets
	count := db.count
	db.buckets = make([][]dbEntry, initialBucketCount)
	db.expires = make(map[string]int64)
	db.count = 0
	db.avgTTL = 0
	db.mu.Unlock()

	if asyncFlag {
		var values []*Value
		for _, chain := range oldBuckets {
			for _, e := range chain {
				values = append(values, e.value)
			}
		}
		db.reclaimer.Reclaim(values)
		return count
	}

	done := 0
	for _, chain := range oldBuckets {
		for range chain {
			done++
			if progress != nil {
				progress(done, count)
			}
		}
	}
	return count
}

func (db *Database) maybeGrowLocked() {
	if float64(db.count) <= float64(len(db.buckets))*growLoadFactor {
		return
	}
	db.resizeLocked(len(db.buckets) * 2)
}

func (db *Database) maybeShrinkLocked() {
	if len(db.buckets) <= initialBucketCount {
		return
	}
	if float64(db.count) >= float64(len(db.buckets))*shrinkLoadFactor {
		return
	}
	db.resizeLocked(len(db.buckets) / 2)
}

func (db *Database) resizeLocked(newSize int) {
	newBuckets := make([][]dbEntry, newSize)
	mask := uint64(newSize - 1)
	for _, chain := range db.buckets {
		for _, e := range chain {
			b := int(bucketHash(e.key) & mask)
			newBuckets[b] = append(newBuckets[b], e)
		}
	}
	db.buckets = newBuckets
	log.Debugf("database %d resized bucket table to %d buckets (%d keys)", db.id, newSize, db.count)
}

func (db *Database) bumpDirty() {
	db.dirtyCount++
	keyspaceDirtyTotal.Inc()
}

// Stats returns the hit/miss/expired/dirty counters, mainly for tests
// and the demo harness.
func (db *Database) Stats() (hits, misses, expired, dirty int64) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.hits, db.misses, db.expiredCount, db.dirtyCount
}

// --- SCAN --------------------------------------------------------------

// Scan implements the cooperative cursor-based iteration of spec.md
// §4.4: the cursor encodes a bucket index under reversed-bit increment,
// so that every key present throughout the scan is visited at least
// once across bucket-table resizes, and the terminating cursor is 0.
// The advisory count bounds total buckets visited at count*10.
func (db *Database) Scan(cursor uint64, match string, count int) (next uint64, keys [][]byte) {
	if count <= 0 {
		count = 10
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	mask := uint64(len(db.buckets) - 1)
	budget := count * 10

	visited := 0
	c := cursor & mask
	for {
		for _, e := range db.buckets[c] {
			if match == "" || globMatch(match, string(e.key)) {
				keys = append(keys, e.key)
			}
		}
		visited++
		c = reverseBinaryIncrement(c, mask)

		if c == 0 || visited >= budget {
			return c, keys
		}
		if len(keys) >= count {
			return c, keys
		}
	}
}

// reverseBinaryIncrement implements the bit-reversed increment: add 1
// to the bit-reversed cursor, then reverse again. This is the classic
// dict-scan trick that keeps a cursor valid across power-of-two resizes
// of the bucket table.
func reverseBinaryIncrement(cursor, mask uint64) uint64 {
	v := cursor | ^mask
	v = bits.Reverse64(v)
	v++
	v = bits.Reverse64(v)
	return v
}

// globMatch reports whether name matches a glob pattern (*, ?, and
// [..] classes) the way KEYS/SCAN's MATCH clause does.
func globMatch(pattern, name string) bool {
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}

// AvgTTL returns the rolling average TTL estimator used by the
// eviction sampler.
func (db *Database) AvgTTL() float64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.avgTTL
}
