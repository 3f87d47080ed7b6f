package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hupe1980/boxdb/internal/fs"
)

// Durability controls the durability guarantees of the log.
type Durability int

const (
	// DurabilityAsync relies on OS page cache. Fast but risky.
	DurabilityAsync Durability = iota
	// DurabilitySync calls fsync after every commit. Slow but safe.
	DurabilitySync
)

func (d Durability) String() string {
	if d == DurabilitySync {
		return "sync"
	}
	return "async"
}

const (
	logMagic   = "BOXDBLOG" // 8 bytes
	logVersion = 1          // 4 bytes
	// HeaderSize is the size of the file header preceding the first frame.
	HeaderSize = 12
)

var (
	ErrIncompatibleVersion = errors.New("incompatible log version")
	ErrInvalidHeader       = errors.New("invalid log header")
	// ErrPoisoned is returned once a failed append could not be undone.
	ErrPoisoned = errors.New("log poisoned by earlier write failure")
)

type Options struct {
	Durability Durability
	// Truncate discards any existing content.
	Truncate bool
}

func DefaultOptions() Options {
	return Options{Durability: DurabilitySync}
}

// WAL is an append-only log of commit frames.
//
// Append is atomic with respect to the file: a frame whose write or fsync
// fails is cut off again before the error is returned, so a rolled back
// transaction never reappears on replay. If that cut fails the log is
// poisoned and rejects further appends.
type WAL struct {
	mu     sync.Mutex
	fs     fs.FileSystem
	file   fs.File
	path   string
	opts   Options
	size   int64
	closed bool
	err    error
}

// Open opens or creates a log at the given path.
func Open(fsys fs.FileSystem, path string, opts Options) (*WAL, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	flag := os.O_APPEND | os.O_CREATE | os.O_RDWR
	if opts.Truncate {
		flag |= os.O_TRUNC
	}
	f, err := fsys.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := stat.Size()

	if size == 0 {
		header := make([]byte, HeaderSize)
		copy(header[0:8], logMagic)
		binary.LittleEndian.PutUint32(header[8:12], uint32(logVersion))
		if _, err := f.Write(header); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, err
		}
		size = HeaderSize
	} else {
		if size < HeaderSize {
			f.Close()
			return nil, fmt.Errorf("%w: file too small (%d < %d)", ErrInvalidHeader, size, HeaderSize)
		}
		header := make([]byte, HeaderSize)
		if _, err := f.ReadAt(header, 0); err != nil {
			f.Close()
			return nil, err
		}
		if string(header[0:8]) != logMagic {
			f.Close()
			return nil, fmt.Errorf("%w: invalid magic %q", ErrInvalidHeader, header[0:8])
		}
		ver := binary.LittleEndian.Uint32(header[8:12])
		if ver != logVersion {
			f.Close()
			return nil, fmt.Errorf("%w: version %d (expected %d)", ErrIncompatibleVersion, ver, logVersion)
		}
	}

	return &WAL{
		fs:   fsys,
		file: f,
		path: path,
		opts: opts,
		size: size,
	}, nil
}

// Path returns the file path of the log.
func (w *WAL) Path() string { return w.path }

// Size returns the current size of the log in bytes.
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Append writes a frame and, with DurabilitySync, fsyncs it.
// It returns the file offset of the end of the frame.
func (w *WAL) Append(f *Frame) (int64, error) {
	buf, err := f.AppendTo(make([]byte, 0, frameHeaderSize+f.bodySize()))
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}
	if w.err != nil {
		return 0, w.err
	}

	start := w.size
	if _, err := w.file.Write(buf); err != nil {
		return 0, w.undo(start, fmt.Errorf("log write failed: %w", err))
	}
	if w.opts.Durability == DurabilitySync {
		if err := w.file.Sync(); err != nil {
			return 0, w.undo(start, fmt.Errorf("log sync failed: %w", err))
		}
	}

	w.size = start + int64(len(buf))
	return w.size, nil
}

// undo cuts the file back to off after a failed append. Requires mu.
func (w *WAL) undo(off int64, cause error) error {
	if err := w.file.Truncate(off); err != nil {
		w.err = fmt.Errorf("%w: %w (truncate: %v)", ErrPoisoned, cause, err)
		return w.err
	}
	w.size = off
	return cause
}

// TruncateTo cuts the log at off. It is used by recovery to drop a torn tail.
func (w *WAL) TruncateTo(off int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if off < HeaderSize || off > w.size {
		return fmt.Errorf("truncate offset %d out of range [%d, %d]", off, HeaderSize, w.size)
	}
	if err := w.file.Truncate(off); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.size = off
	return nil
}

// Sync ensures all written frames are committed to stable storage.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if w.err != nil {
		return w.err
	}
	return w.file.Sync()
}

// Close syncs and closes the log file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	w.closed = true

	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// Reader returns a reader for replaying the log.
// The caller is responsible for closing the returned reader.
func (w *WAL) Reader() (*Reader, error) {
	f, err := w.fs.OpenFile(w.path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(HeaderSize, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{f: f, r: bufio.NewReaderSize(f, 64*1024), offset: HeaderSize}, nil
}

// Reader iterates over frames.
type Reader struct {
	f      fs.File
	r      *bufio.Reader
	offset int64
}

// Next reads the next frame. Returns io.EOF when done.
func (r *Reader) Next() (*Frame, error) {
	f, n, err := Decode(r.r)
	if err == nil {
		r.offset += n
	}
	return f, err
}

// Offset returns the end offset of the last valid frame.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.f.Close()
}
