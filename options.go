package boxdb

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/pebble/vfs"

	"github.com/hupe1980/boxdb/codec"
	ifs "github.com/hupe1980/boxdb/internal/fs"
	"github.com/hupe1980/boxdb/internal/wal"
)

// Backend selects the storage engine behind a store.
type Backend int

const (
	// BackendLog keeps the store in a single append-only commit log with an
	// in-memory index. It is the default.
	BackendLog Backend = iota
	// BackendPebble keeps the store in a Pebble LSM tree.
	BackendPebble
)

func (b Backend) String() string {
	switch b {
	case BackendLog:
		return "log"
	case BackendPebble:
		return "pebble"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ParseBackend parses "log" or "pebble".
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "", "log":
		return BackendLog, nil
	case "pebble":
		return BackendPebble, nil
	default:
		return 0, fmt.Errorf("%w: unknown backend %q", ErrInvalidArgument, s)
	}
}

// Durability controls when a commit reaches stable storage.
type Durability int

const (
	// DurabilitySync fsyncs every commit before Commit returns (default).
	DurabilitySync Durability = iota
	// DurabilityAsync leaves flushing to the OS. A crash may lose the most
	// recent commits but never leaves a partial one.
	DurabilityAsync
)

func (d Durability) wal() wal.Durability {
	if d == DurabilityAsync {
		return wal.DurabilityAsync
	}
	return wal.DurabilitySync
}

type options struct {
	logger              *Logger
	metricsCollector    MetricsCollector
	backend             Backend
	durability          Durability
	compression         codec.Compression
	compactionThreshold int64
	fs                  ifs.FileSystem
	pebbleFS            vfs.FS
	cacheSize           int64
	backgroundWorkers   int
	backgroundIOLimit   int64
}

// Option configures Open.
type Option func(*options)

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := boxdb.NewJSONLogger(slog.LevelInfo)
//	db, _ := boxdb.Open(dir, entities, boxdb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &boxdb.BasicMetricsCollector{}
//	db, _ := boxdb.Open(dir, entities, boxdb.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Puts: %d, Avg latency: %dns\n", stats.PutCount, stats.PutAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithBackend selects the storage engine. A directory must always be
// reopened with the backend that created it.
func WithBackend(b Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithDurability sets the commit durability. Default: DurabilitySync.
func WithDurability(d Durability) Option {
	return func(o *options) {
		o.durability = d
	}
}

// WithCompression sets the compression applied to newly written records.
// Records written with another setting remain readable.
func WithCompression(c codec.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithCompactionThreshold compacts the commit log automatically once it
// grows past bytes. Zero disables automatic compaction. Log backend only.
func WithCompactionThreshold(bytes int64) Option {
	return func(o *options) {
		o.compactionThreshold = bytes
	}
}

// WithPebbleFS overrides the Pebble filesystem, e.g. vfs.NewMem() for an
// in-memory store. Pebble backend only.
func WithPebbleFS(fs vfs.FS) Option {
	return func(o *options) {
		o.pebbleFS = fs
	}
}

// WithCacheSize sets the Pebble block cache size in bytes.
func WithCacheSize(bytes int64) Option {
	return func(o *options) {
		o.cacheSize = bytes
	}
}

// WithBackgroundWorkers bounds how many background jobs (compactions and
// backups) run at once. Default: 1.
func WithBackgroundWorkers(n int) Option {
	return func(o *options) {
		o.backgroundWorkers = n
	}
}

// WithBackgroundIOLimit throttles backup and restore streams to
// bytesPerSec. Zero means unlimited.
func WithBackgroundIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.backgroundIOLimit = bytesPerSec
	}
}

// withFileSystem swaps the filesystem of the log backend.
func withFileSystem(fsys ifs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:            NoopLogger(),
		metricsCollector:  NoopMetricsCollector{},
		backend:           BackendLog,
		durability:        DurabilitySync,
		compression:       codec.CompressionNone,
		fs:                ifs.Default,
		backgroundWorkers: 1,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
