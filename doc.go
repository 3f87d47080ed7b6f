// Package boxdb is an embedded object store for statically declared
// entities.
//
// Each entity is a durable collection of records keyed by an auto-assigned
// 64-bit identifier. Entities are declared once, in Go or YAML, and passed
// to Open; the store checks them against the property tables it persisted
// earlier.
//
// # Quick Start
//
//	user := schema.MustEntity("User", 1,
//	    schema.NewProperty("id", 1, schema.Int64, schema.ID),
//	    schema.NewProperty("name", 2, schema.String, schema.Indexed),
//	    schema.NewProperty("email", 3, schema.String, schema.Unique),
//	)
//
//	db, err := boxdb.Open("./data", []*schema.Entity{user})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.Update(ctx, func(tx *boxdb.Tx) error {
//	    cur, err := tx.Cursor(user)
//	    if err != nil {
//	        return err
//	    }
//	    _, err = cur.Put(model.NewRecord(0).
//	        Set("name", model.String("Alice")).
//	        Set("email", model.String("alice@example.com")))
//	    return err
//	})
//
// # Transactions
//
// One write transaction is open at a time; BeginWrite waits for it. Read
// transactions run concurrently on snapshots and never block the writer.
// View and Update release their transaction on every path, including
// panics. A unique constraint violation or a storage failure rolls the
// write transaction back.
//
// # Queries
//
//	q, _ := query.New(user).
//	    Where(query.StartsWith("name", "a", query.CaseInsensitive())).
//	    OrderBy("name", query.Descending).
//	    Limit(10).
//	    Build()
//	recs, err := cur.Find(q)
//
// Equality conditions on indexed properties are answered from the index.
//
// # Backends
//
// BackendLog (default) keeps everything in one append-only commit log.
// BackendPebble stores records in a Pebble LSM tree.
//
// # Backup
//
// Backup writes a consistent snapshot to any blobstore.BlobStore (local
// directory, memory, S3, MinIO); Restore loads it into an empty store.
//
// # Errors
//
// Errors match the sentinels in this package with errors.Is: ErrNotFound,
// ErrConstraintViolation, ErrInvalidState (ErrReadOnly, ErrTxDone,
// ErrClosed), ErrIOFailure, ErrSchemaMismatch and ErrInvalidArgument.
package boxdb
