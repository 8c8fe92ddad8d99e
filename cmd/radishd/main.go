package main

import (
	"bytes"
	"flag"
	"fmt"
	"time"

	"github.com/radishdb/keyspace/core"
	"github.com/radishdb/keyspace/log"
)

// radishd is a thin composition root: it builds the engine's database
// array from Config and runs it through a handful of end-to-end
// scenarios as a startup smoke check. There is no network listener and
// no command parser here -- both live on the other side of
// core.Hooks, out of scope for this binary.
func main() {
	var (
		maxDatabases int
		verbose      bool
		veryVerbose  bool
	)

	flag.IntVar(&maxDatabases, "n", 16, "Number of databases in the keyspace array.")
	flag.BoolVar(&verbose, "v", false, "Enable verbose logging.")
	flag.BoolVar(&veryVerbose, "vv", false, "Enable very verbose logging.")
	flag.Parse()

	switch {
	case veryVerbose:
		log.SetLevel(log.DEBUG)
	case verbose:
		log.SetLevel(log.INFO)
	default:
		log.SetLevel(log.NOTICE)
	}

	cfg := core.DefaultConfig()
	cfg.MaxDatabases = maxDatabases

	reclaimer := core.NewReclaimer()
	hooks := core.NewLoggingHooks()

	dbs := make([]*core.Database, cfg.MaxDatabases)
	for i := range dbs {
		dbs[i] = core.NewDatabase(i, cfg, hooks, reclaimer)
	}

	role := core.Primary()
	ops := core.NewStringOps(dbs[0], cfg)

	log.Notice("running startup smoke scenarios")
	runSetGetDelExists(ops, dbs[0], role)
	runTTL(ops, dbs[0], role)
	runScanCompleteness(ops, dbs[0], role)
	log.Notice("smoke scenarios passed")
}

// runSetGetDelExists is scenario E1.
func runSetGetDelExists(ops *core.StringOps, db *core.Database, role core.Role) {
	must(ops.Set([]byte("foo"), []byte("bar"), core.SetAlways, role, 0))

	v, ok := db.LookupRead([]byte("foo"), core.ReadFlags{}, role)
	assertTrue(ok && bytes.Equal(v.Bytes(), []byte("bar")), "E1: GET foo")

	assertTrue(db.Exists([]byte("foo")), "E1: EXISTS foo")
	assertTrue(!db.Exists([]byte("missing")), "E1: EXISTS missing")

	assertTrue(db.Delete([]byte("foo")), "E1: DEL foo")
	_, ok = db.LookupRead([]byte("foo"), core.ReadFlags{}, role)
	assertTrue(!ok, "E1: GET foo after DEL")
}

// runTTL is scenario E2, compressed onto a real clock instead of a
// simulated one: SET with a short PX, observe it alive then expired.
func runTTL(ops *core.StringOps, db *core.Database, role core.Role) {
	must(ops.Set([]byte("k"), []byte("v"), core.SetAlways, role, time.Now().Add(60*time.Millisecond).UnixMilli()))

	v, ok := db.LookupRead([]byte("k"), core.ReadFlags{}, role)
	assertTrue(ok && bytes.Equal(v.Bytes(), []byte("v")), "E2: GET k before expiry")

	time.Sleep(120 * time.Millisecond)

	_, ok = db.LookupRead([]byte("k"), core.ReadFlags{}, role)
	assertTrue(!ok, "E2: GET k after expiry")
}

// runScanCompleteness is scenario E5: insert k0..k999, drain SCAN from
// cursor 0 to cursor 0, and check the union covers every key.
func runScanCompleteness(ops *core.StringOps, db *core.Database, role core.Role) {
	const n = 1000
	for i := 0; i < n; i++ {
		must(ops.Set([]byte(fmt.Sprintf("k%d", i)), []byte("1"), core.SetAlways, role, 0))
	}

	seen := make(map[string]bool, n)
	cursor := uint64(0)
	for {
		var keys [][]byte
		cursor, keys = db.Scan(cursor, "", 10)
		for _, k := range keys {
			seen[string(k)] = true
		}
		if cursor == 0 {
			break
		}
	}

	for i := 0; i < n; i++ {
		assertTrue(seen[fmt.Sprintf("k%d", i)], "E5: scan missed a key")
	}
}

func must(err error) {
	if err != nil {
		log.Critical(err.Error())
		panic(err)
	}
}

func assertTrue(cond bool, msg string) {
	if !cond {
		log.Critical("smoke check failed: " + msg)
		panic(msg)
	}
}
