package core

// MaxmemoryPolicy selects which half of a Value's access_meta word is
// meaningful: the LRU clock or the LFU counter+decay timestamp.
type MaxmemoryPolicy int

const (
	// PolicyLRU maintains a 24-bit seconds LRU clock in access_meta.
	PolicyLRU MaxmemoryPolicy = iota
	// PolicyLFU maintains a 24-bit access time (minutes) + 8-bit LFU counter.
	PolicyLFU
)

// Config holds the engine's tunable knobs, enumerated in spec.md §6.
// There's no config-file library backing this: the teacher never reads
// one either (cmd/radishd/main.go parses bare flag.* into field
// defaults), so a plain struct with DefaultConfig defaults is the idiomatic
// match rather than introducing a dependency the teacher's own lineage
// doesn't carry.
type Config struct {
	// MaxDatabases is the size of the database array.
	MaxDatabases int

	// MaxStringSize is the per-value byte cap enforced by StringOps.
	MaxStringSize int

	// LazyfreeServerDel makes delete(db, key) default to lazy reclamation.
	LazyfreeServerDel bool

	// LazyfreeExpire makes expiration-triggered delete lazy.
	LazyfreeExpire bool

	// MaxmemoryPolicy selects the LRU/LFU access_meta update rule.
	MaxmemoryPolicy MaxmemoryPolicy

	// ClusterEnabled records whether cluster mode is on. The database
	// layer does not read it: it calls the slot-index hook on every key
	// add and removal either way.
	ClusterEnabled bool

	// ZiplistEntryThreshold is the max entry count before a small
	// container upgrades to its full encoding.
	ZiplistEntryThreshold int

	// ZiplistValueThreshold is the max per-entry byte length before a
	// small container upgrades to its full encoding.
	ZiplistValueThreshold int

	// SmallIntegerSharedMax records the shared-integer pool size. The
	// pool itself is a fixed 10000-entry array and does not read it.
	SmallIntegerSharedMax int
}

// DefaultConfig returns the configuration the teacher's Controller.New
// seeds inline, generalized to every knob spec.md §6 names.
func DefaultConfig() Config {
	return Config{
		MaxDatabases:          16,
		MaxStringSize:         512 * 1024 * 1024,
		LazyfreeServerDel:     false,
		LazyfreeExpire:        false,
		MaxmemoryPolicy:       PolicyLRU,
		ClusterEnabled:        false,
		ZiplistEntryThreshold: 128,
		ZiplistValueThreshold: 64,
		SmallIntegerSharedMax: 10000,
	}
}
