package boxdb

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/boxdb/blobstore"
	"github.com/hupe1980/boxdb/codec"
	"github.com/hupe1980/boxdb/internal/hash"
	"github.com/hupe1980/boxdb/internal/resource"
	"github.com/hupe1980/boxdb/schema"
)

const (
	manifestName = "MANIFEST"
	// maxBackupRecord bounds a single encoded record read back from a backup.
	maxBackupRecord = 64 << 20
)

var errCorruptBackup = errors.New("corrupt backup")

// BackupInfo describes a backup. It is stored as JSON in the backup's
// MANIFEST blob.
type BackupInfo struct {
	ID       string         `json:"id"`
	Created  time.Time      `json:"created"`
	Backend  string         `json:"backend"`
	Entities []BackupEntity `json:"entities"`
}

// BackupEntity describes the records of one entity within a backup.
type BackupEntity struct {
	Name    string `json:"name"`
	ID      uint32 `json:"id"`
	Blob    string `json:"blob"`
	Records uint64 `json:"records"`
	Size    int64  `json:"size"`
	CRC32C  uint32 `json:"crc32c"`
}

// Records returns the number of records over all entities.
func (b *BackupInfo) Records() uint64 {
	var n uint64
	for _, e := range b.Entities {
		n += e.Records
	}
	return n
}

type backupOptions struct {
	concurrency int
	rateLimit   int64
	id          string
}

// BackupOption configures Backup and Restore.
type BackupOption func(*backupOptions)

// WithBackupConcurrency sets how many entities are exported at once.
// Default: 4.
func WithBackupConcurrency(n int) BackupOption {
	return func(o *backupOptions) {
		o.concurrency = n
	}
}

// WithBackupRateLimit throttles the blob streams of this call to
// bytesPerSec, overriding WithBackgroundIOLimit.
func WithBackupRateLimit(bytesPerSec int64) BackupOption {
	return func(o *backupOptions) {
		o.rateLimit = bytesPerSec
	}
}

// WithBackupID makes Restore use the given backup instead of the one named
// by CURRENT.
func WithBackupID(id string) BackupOption {
	return func(o *backupOptions) {
		o.id = id
	}
}

func (s *Store) backupOptions(optFns []BackupOption) (backupOptions, *resource.Controller) {
	o := backupOptions{concurrency: 4}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.concurrency <= 0 {
		o.concurrency = 1
	}
	rc := s.rc
	if o.rateLimit > 0 {
		rc = resource.NewController(resource.Config{IOLimitBytesPerSec: o.rateLimit})
	}
	return o, rc
}

// Backup exports a consistent snapshot of every entity to bs.
//
// Each entity becomes a zstd stream "<id>/<entity>.zst", described by
// "<id>/MANIFEST". CURRENT is rewritten last, so a failed backup never
// replaces the previous one. Writers are not blocked while it runs.
func (s *Store) Backup(ctx context.Context, bs blobstore.BlobStore, optFns ...BackupOption) (*BackupInfo, error) {
	start := time.Now()
	o, rc := s.backupOptions(optFns)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("%w: backup id: %w", ErrIOFailure, err)
	}

	info, err := s.backup(ctx, bs, id.String(), o, rc)
	var records uint64
	if info != nil {
		records = info.Records()
	}
	s.opts.logger.LogBackup(ctx, id.String(), records, time.Since(start), err)
	if err != nil {
		return nil, translateError(err)
	}
	return info, nil
}

func (s *Store) backup(ctx context.Context, bs blobstore.BlobStore, id string, o backupOptions, rc *resource.Controller) (*BackupInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := s.rc.AcquireBackground(ctx); err != nil {
		return nil, err
	}
	defer s.rc.ReleaseBackground()

	tx, err := s.BeginRead()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	entities := s.Entities()
	info := &BackupInfo{
		ID:       id,
		Created:  time.Now().UTC(),
		Backend:  s.opts.backend.String(),
		Entities: make([]BackupEntity, len(entities)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, ent := range entities {
		g.Go(func() error {
			e, err := exportEntity(gctx, tx, bs, rc, id, ent)
			info.Entities[i] = e
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	manifest, err := codec.Default.Marshal(info)
	if err != nil {
		return nil, err
	}
	if err := bs.Put(ctx, path.Join(id, manifestName), manifest); err != nil {
		return nil, err
	}
	if err := bs.Put(ctx, blobstore.Current, []byte(id)); err != nil {
		return nil, err
	}
	return info, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func exportEntity(ctx context.Context, tx *Tx, bs blobstore.BlobStore, rc *resource.Controller, id string, ent *schema.Entity) (BackupEntity, error) {
	e := BackupEntity{
		Name: ent.Name(),
		ID:   ent.ID(),
		Blob: path.Join(id, ent.Name()+".zst"),
	}

	cur, err := tx.Cursor(ent)
	if err != nil {
		return e, err
	}
	w, err := bs.Create(ctx, e.Blob)
	if err != nil {
		return e, err
	}

	crc := hash.NewCRC32C()
	out := &countingWriter{w: io.MultiWriter(resource.NewRateLimitedWriter(ctx, w, rc), crc)}
	zw, err := zstd.NewWriter(out, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return e, errors.Join(err, w.Close())
	}

	var buf []byte
	for rec, err := range cur.All() {
		if err != nil {
			return e, errors.Join(err, zw.Close(), w.Close())
		}
		data := codec.EncodeRecord(ent, rec)
		buf = binary.AppendUvarint(buf[:0], rec.ID)
		buf = binary.AppendUvarint(buf, uint64(len(data)))
		buf = append(buf, data...)
		if _, err := zw.Write(buf); err != nil {
			return e, errors.Join(err, zw.Close(), w.Close())
		}
		e.Records++
	}

	if err := zw.Close(); err != nil {
		return e, errors.Join(err, w.Close())
	}
	if err := w.Sync(); err != nil {
		return e, errors.Join(err, w.Close())
	}
	if err := w.Close(); err != nil {
		return e, err
	}
	e.Size = out.n
	e.CRC32C = crc.Sum32()
	return e, nil
}

// Backups returns the ids of the complete backups in bs, oldest first.
func Backups(ctx context.Context, bs blobstore.BlobStore) ([]string, error) {
	names, err := bs.List(ctx, "")
	if err != nil {
		return nil, translateError(err)
	}
	var ids []string
	for _, name := range names {
		if id, ok := strings.CutSuffix(name, "/"+manifestName); ok {
			ids = append(ids, id)
		}
	}
	// Version 7 UUIDs sort by creation time.
	slices.Sort(ids)
	return ids, nil
}

// ReadBackupInfo reads the manifest of backup id, or of the backup named by
// CURRENT when id is empty.
func ReadBackupInfo(ctx context.Context, bs blobstore.BlobStore, id string) (*BackupInfo, error) {
	info, err := readManifest(ctx, bs, id)
	return info, translateError(err)
}

func readManifest(ctx context.Context, bs blobstore.BlobStore, id string) (*BackupInfo, error) {
	if id == "" {
		current, err := blobstore.ReadAll(ctx, bs, blobstore.Current)
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: no backup in store", ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		id = strings.TrimSpace(string(current))
	}

	data, err := blobstore.ReadAll(ctx, bs, path.Join(id, manifestName))
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: backup %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var info BackupInfo
	if err := codec.Default.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: manifest of %s: %w", errCorruptBackup, id, err)
	}
	return &info, nil
}

// Restore loads a backup from bs into this store in one write transaction.
// Every entity in the backup must be declared and empty; identifiers are
// preserved.
func (s *Store) Restore(ctx context.Context, bs blobstore.BlobStore, optFns ...BackupOption) (*BackupInfo, error) {
	start := time.Now()
	o, rc := s.backupOptions(optFns)

	info, err := s.restore(ctx, bs, o, rc)
	id, records := o.id, uint64(0)
	if info != nil {
		id, records = info.ID, info.Records()
	}
	s.opts.logger.LogRestore(ctx, id, records, time.Since(start), err)
	if err != nil {
		return nil, translateError(err)
	}
	return info, nil
}

func (s *Store) restore(ctx context.Context, bs blobstore.BlobStore, o backupOptions, rc *resource.Controller) (*BackupInfo, error) {
	info, err := readManifest(ctx, bs, o.id)
	if err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := s.rc.AcquireBackground(ctx); err != nil {
		return nil, err
	}
	defer s.rc.ReleaseBackground()

	err = s.Update(ctx, func(tx *Tx) error {
		for _, e := range info.Entities {
			ent, ok := s.Entity(e.Name)
			if !ok || ent.ID() != e.ID {
				return fmt.Errorf("%w: backup entity %s (id %d) is not declared", ErrSchemaMismatch, e.Name, e.ID)
			}
			cur, err := tx.Cursor(ent)
			if err != nil {
				return err
			}
			n, err := cur.Count()
			if err != nil {
				return err
			}
			if n != 0 {
				return fmt.Errorf("%w: entity %s is not empty", ErrInvalidState, e.Name)
			}
			if err := importEntity(ctx, cur, bs, rc, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func importEntity(ctx context.Context, cur *Cursor, bs blobstore.BlobStore, rc *resource.Controller, e BackupEntity) error {
	b, err := bs.Open(ctx, e.Blob)
	if err != nil {
		return err
	}
	defer b.Close() //nolint:errcheck
	if b.Size() == 0 && e.Records == 0 {
		return nil
	}

	body, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return err
	}
	defer body.Close() //nolint:errcheck

	crc := hash.NewCRC32C()
	raw := io.TeeReader(resource.NewRateLimitedReader(ctx, body, rc), crc)
	zr, err := zstd.NewReader(raw, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return err
	}
	defer zr.Close()
	br := bufio.NewReader(zr)

	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", errCorruptBackup, e.Blob, fmt.Sprintf(format, args...))
	}

	var n uint64
	for {
		id, err := binary.ReadUvarint(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return corrupt("record %d: %v", n, err)
		}
		size, err := binary.ReadUvarint(br)
		if err != nil {
			return corrupt("record %d: %v", n, err)
		}
		if size > maxBackupRecord {
			return corrupt("record %d: length %d", n, size)
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(br, data); err != nil {
			return corrupt("record %d: %v", n, err)
		}
		rec, err := codec.DecodeRecord(cur.Entity(), id, data)
		if err != nil {
			return corrupt("record %d: %v", n, err)
		}
		if _, err := cur.Put(rec); err != nil {
			return err
		}
		n++
	}

	if _, err := io.Copy(io.Discard, raw); err != nil {
		return err
	}
	if n != e.Records {
		return corrupt("%d records, manifest says %d", n, e.Records)
	}
	if sum := crc.Sum32(); sum != e.CRC32C {
		return corrupt("checksum %08x, manifest says %08x", sum, e.CRC32C)
	}
	return nil
}
