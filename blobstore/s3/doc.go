// Package s3 provides Amazon S3 implementations of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("backups/"),
//	    s3.WithRegion("us-east-1"),
//	)
//	info, err := db.Backup(ctx, store)
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads for large backup streams
//   - CRC32C checksums on uploads
//   - Automatic pagination for listing
//   - Optional DynamoDB-backed CURRENT pointer (DDBCommitStore) so two
//     concurrent backups cannot silently overwrite each other's pointer
package s3
