package core

import "github.com/VictoriaMetrics/metrics"

// Observable counters for the database layer. One global per quantity,
// following the idiom in the pack's erigon-lib kv package
// (kv.DbSize, kv.TxLimit, ...): package-level metrics.NewCounter vars,
// //nolint where a linter would flag the global.
var (
	keyspaceHits         = metrics.NewCounter(`radish_keyspace_hits_total`)         //nolint
	keyspaceMisses       = metrics.NewCounter(`radish_keyspace_misses_total`)       //nolint
	keyspaceExpiredTotal = metrics.NewCounter(`radish_keyspace_expired_total`)      //nolint
	keyspaceDirtyTotal   = metrics.NewCounter(`radish_keyspace_dirty_total`)        //nolint
	keyspaceReclaimed    = metrics.NewCounter(`radish_keyspace_reclaimed_total`)    //nolint
)
