package core

// Exported accessors for unexported fields, for use by tests only.

func (z *Ziplist) RawBytes() []byte { return z.buf }

func (v *Value) RawBytes() []byte { return v.raw }

func (v *Value) SetRefcount(n int32) { v.refcount = n }

func (db *Database) BucketCount() int { return len(db.buckets) }

func (db *Database) Count() int { return db.count }
