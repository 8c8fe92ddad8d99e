package core

import "github.com/radishdb/keyspace/log"

// KeyspaceEventCategory groups the observable keyspace-event names
// enumerated in spec.md §6.
type KeyspaceEventCategory string

const (
	EventCategoryGeneric KeyspaceEventCategory = "generic"
	EventCategoryString  KeyspaceEventCategory = "string"
	EventCategoryExpired KeyspaceEventCategory = "expired"
)

// SlotChange tells slot_index_update whether a key was added to or
// removed from this node's keyspace.
type SlotChange int

const (
	SlotAdded SlotChange = iota
	SlotRemoved
)

// Hooks is the narrow set of external collaborators the engine calls
// out to, per spec.md §4.6/§6: command parsing, client I/O, replication
// propagation and cluster routing all live on the other side of this
// interface and are never implemented here. Grounded on the teacher's
// Core interface in controller/controller.go -- a small method set the
// engine consumes, not implements.
type Hooks interface {
	// NotifyKeyspaceEvent is a fire-and-forget side channel to pub/sub
	// subscribers.
	NotifyKeyspaceEvent(category KeyspaceEventCategory, event, key string, dbID int)

	// Propagate queues argv for replicas and the append-only log.
	Propagate(dbID int, argv [][]byte)

	// SignalListReady wakes clients blocked waiting on key becoming a
	// non-empty list.
	SignalListReady(dbID int, key string)

	// SignalModifiedKey invalidates any optimistic-transaction watch on
	// key.
	SignalModifiedKey(dbID int, key string)

	// SlotIndexUpdate maintains the cluster slot-to-keys reverse index;
	// a no-op implementation is expected when cluster mode is disabled.
	SlotIndexUpdate(key string, change SlotChange)

	// IsSnapshotChildActive reports whether a point-in-time snapshot
	// (e.g. a fork()-based background save) is in progress, in which
	// case lookup_read must not perturb access_meta and so disturb the
	// copy-on-write page set the snapshot child is reading.
	IsSnapshotChildActive() bool
}

// NopHooks is a Hooks implementation that does nothing, suitable when
// cluster mode / pub-sub / replication are all disabled -- the default
// composition for a standalone, non-clustered node.
type NopHooks struct{}

func (NopHooks) NotifyKeyspaceEvent(KeyspaceEventCategory, string, string, int) {}
func (NopHooks) Propagate(int, [][]byte)                                       {}
func (NopHooks) SignalListReady(int, string)                                   {}
func (NopHooks) SignalModifiedKey(int, string)                                 {}
func (NopHooks) SlotIndexUpdate(string, SlotChange)                            {}
func (NopHooks) IsSnapshotChildActive() bool                                   { return false }

// LoggingHooks wraps another Hooks implementation (NopHooks by default)
// and additionally logs each keyspace event at debug level -- the
// composition a demo/smoke harness wants, in the teacher's log.Debugf
// idiom. The other hook calls are forwarded without logging.
type LoggingHooks struct {
	Next Hooks
}

func NewLoggingHooks() LoggingHooks { return LoggingHooks{Next: NopHooks{}} }

func (h LoggingHooks) NotifyKeyspaceEvent(category KeyspaceEventCategory, event, key string, dbID int) {
	log.Debugf("keyspace event: db=%d category=%s event=%s key=%q", dbID, category, event, key)
	h.Next.NotifyKeyspaceEvent(category, event, key, dbID)
}

func (h LoggingHooks) Propagate(dbID int, argv [][]byte) {
	h.Next.Propagate(dbID, argv)
}

func (h LoggingHooks) SignalListReady(dbID int, key string) {
	h.Next.SignalListReady(dbID, key)
}

func (h LoggingHooks) SignalModifiedKey(dbID int, key string) {
	h.Next.SignalModifiedKey(dbID, key)
}

func (h LoggingHooks) SlotIndexUpdate(key string, change SlotChange) {
	h.Next.SlotIndexUpdate(key, change)
}

func (h LoggingHooks) IsSnapshotChildActive() bool {
	return h.Next.IsSnapshotChildActive()
}
