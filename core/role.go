package core

import "time"

// RoleKind distinguishes the node roles spec.md §4.4 branches
// expire_if_needed on: only a Primary physically deletes expired keys.
type RoleKind int

const (
	// RolePrimary owns physical deletion of expired keys.
	RolePrimary RoleKind = iota
	// RoleReplica never deletes; it reports expiration as a logical flag.
	RoleReplica
	// RoleLoading is replaying a log or loading a snapshot: expiration
	// is suppressed because deletions will be replayed.
	RoleLoading
)

// Role is the capability spec.md's Design Notes call for in place of a
// global "am I a replica / is a script running" check: callers pass it
// explicitly into expire_if_needed rather than the engine consulting
// ambient state.
type Role struct {
	Kind RoleKind

	// ScriptFrozenAt, when non-zero, freezes "now" to the script's
	// start time so a replica's expiration decision stays consistent
	// across the whole script. now() honors it for every Kind.
	ScriptFrozenAt time.Time

	// IsReplicationLink reports whether the current caller is the
	// replication link itself, not an ordinary read-only client. The
	// read path (lookup_read) uses this to decide whether a replica may
	// still see a logically-expired key it hasn't been told to delete
	// yet.
	IsReplicationLink bool
}

// Primary is the default role for a standalone node.
func Primary() Role { return Role{Kind: RolePrimary} }

// Replica constructs a replica role capability.
func Replica(isReplicationLink bool) Role {
	return Role{Kind: RoleReplica, IsReplicationLink: isReplicationLink}
}

// Loading constructs the role used while replaying a log or RDB file.
func Loading() Role { return Role{Kind: RoleLoading} }

// now returns the time this role capability considers "now": the frozen
// script start time when one is set, otherwise the wall clock.
func (r Role) now() time.Time {
	if !r.ScriptFrozenAt.IsZero() {
		return r.ScriptFrozenAt
	}
	return time.Now()
}
