package core

import (
	"encoding/gob"
	"fmt"
	"io"
)

// gobRecord is the wire shape of one key's snapshot record. Grounded on
// the teacher's gobExportItem in core/storagehash.go, generalized from
// Item's kind/bytes/list/dict fields onto Value's
// type/encoding/raw/ival/ziplist-bytes/list-elements/dict fields.
type gobRecord struct {
	Key      string
	Deadline int64 // absolute ms deadline, 0 means no expiration

	Type     ValueType
	Encoding Encoding

	Raw  []byte
	Int  int64
	ZL   []byte
	List [][]byte
	Dict map[string][]byte
}

func valueToRecord(key []byte, v *Value, deadline int64) gobRecord {
	rec := gobRecord{
		Key:      string(key),
		Deadline: deadline,
		Type:     v.typ,
		Encoding: v.encoding,
	}
	switch v.encoding {
	case EncInt:
		rec.Int = v.ival
	case EncRaw, EncEmbstr:
		rec.Raw = v.raw
	case EncZiplist:
		rec.ZL = v.zl.Bytes()
	case EncLinkedList:
		for n := v.list.Head(); n != nil; n = n.Next() {
			rec.List = append(rec.List, n.Value.([]byte))
		}
	case EncHashtable:
		rec.Dict = v.dict
	}
	return rec
}

func recordToValue(rec gobRecord, cfg Config) *Value {
	v := &Value{typ: rec.Type, encoding: rec.Encoding, refcount: 1}
	switch rec.Encoding {
	case EncInt:
		v.ival = rec.Int
	case EncRaw, EncEmbstr:
		v.raw = rec.Raw
	case EncZiplist:
		v.zl = LoadZiplist(rec.ZL)
	case EncLinkedList:
		l := NewDList()
		for _, e := range rec.List {
			l.PushTail(e)
		}
		v.list = l
	case EncHashtable:
		v.dict = rec.Dict
	}
	return v
}

// Persist dumps every (key, value, deadline) triple in db into w as a
// gob stream, exactly like the teacher's StorageHash.Persist: a single
// leading scalar (here the database id, standing in for the teacher's
// replication message id) followed by one record per key.
func (db *Database) Persist(w io.Writer) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	encoder := gob.NewEncoder(w)

	if err := encoder.Encode(db.id); err != nil {
		return fmt.Errorf("Database.Persist(): can't encode database id: %s", err)
	}

	for _, chain := range db.buckets {
		for _, e := range chain {
			deadline := db.expires[string(e.key)]
			rec := valueToRecord(e.key, e.value, deadline)
			if err := encoder.Encode(&rec); err != nil {
				return fmt.Errorf("Database.Persist(): can't encode key %q: %s", e.key, err)
			}
		}
	}

	return nil
}

// Load replays a gob stream produced by Persist into db, which must be
// empty. Returns the persisted database id and the number of keys
// loaded. Records are appended straight into the bucket table (no hook
// calls), bypassing expire_if_needed: a stream written with an
// already-past deadline is loaded as-is and left for the next lookup to
// reap.
func (db *Database) Load(r io.Reader) (persistedID, count int, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.count != 0 {
		return 0, 0, fmt.Errorf("Database.Load(): restore enabled only on an empty database")
	}

	decoder := gob.NewDecoder(r)

	if err := decoder.Decode(&persistedID); err != nil {
		return 0, 0, fmt.Errorf("Database.Load(): can't decode database id: %s", err)
	}

	rec := new(gobRecord)
	for err := decoder.Decode(rec); err != io.EOF; err = decoder.Decode(rec) {
		if err != nil {
			return 0, 0, fmt.Errorf("Database.Load(): can't decode record: %s", err)
		}

		key := []byte(rec.Key)
		v := recordToValue(*rec, db.cfg)

		b := db.bucketIndex(key)
		db.buckets[b] = append(db.buckets[b], dbEntry{key: append([]byte(nil), key...), value: v})
		db.count++
		if rec.Deadline != 0 {
			db.expires[rec.Key] = rec.Deadline
		}
		count++

		rec = new(gobRecord)
	}
	db.maybeGrowLocked()

	return persistedID, count, nil
}
