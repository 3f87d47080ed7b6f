// Package blobstore provides the storage abstraction used as a backup target.
//
// BlobStore is the interface for reading and writing named blobs (backup
// streams, manifests, the CURRENT pointer). Implementations must be safe for
// concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests
//   - LocalStore: local file system, atomic writes via temp file and rename
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - s3.DDBCommitStore: S3 plus a DynamoDB conditional write for CURRENT
//   - minio.Store: MinIO or any S3-compatible server
//
// # Custom Implementations
//
// Implement the BlobStore interface to support custom storage backends:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)           // Open for reading
//	    Create(ctx, name) (WritableBlob, error) // Stream a new blob
//	    Put(ctx, name, data) error              // Atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// The blobtest package holds a conformance suite for implementations.
package blobstore
