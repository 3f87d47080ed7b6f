// Package fs is the disk seam under the commit log.
//
// [LocalFS] forwards to package os. [FaultyFS] wraps another FileSystem and
// fails writes, syncs, truncates, renames or closes of matching files, which
// is how tests drive the IOFailure rollback paths.
//
// Without an explicit FileSystem the store uses fs.Default:
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
// Tests can inject [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("store.log", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
//
// Filesystem calls take no context.Context: local syscalls are short and not
// interruptible. Remote backup targets live in package blobstore, which does.
package fs
