// Command boxctl inspects and maintains a boxdb store.
//
//	boxctl -dir ./data -schema schema.yaml count
//	boxctl -dir ./data -schema schema.yaml get User 42
//	boxctl -dir ./data -schema schema.yaml query User -where name=alice -limit 10
//	boxctl -dir ./data -schema schema.yaml backup s3://bucket/backups
//	boxctl -dir ./restored -schema schema.yaml restore ./backups
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/hupe1980/boxdb"
	"github.com/hupe1980/boxdb/codec"
	"github.com/hupe1980/boxdb/schema"
)

var errUsage = errors.New("usage")

const usage = `usage: boxctl [flags] <command> [args]

commands:
  count [entity]                 number of records per entity
  get <entity> <id>              print one record
  dump <entity>                  print every record, one JSON object per line
  query <entity> -where p=v ...  print matching records
  backup <target>                export the store
  restore <target> [-id id]      import a backup into an empty store
  compact                        reclaim space

targets are a local directory, s3://bucket/prefix or minio://host:port/bucket/prefix

flags:
`

type cliConfig struct {
	dir         string
	schemaPath  string
	backend     string
	compression string
	logLevel    string
	async       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "boxctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cfg cliConfig
	fs := flag.NewFlagSet("boxctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&cfg.dir, "dir", "", "store directory (required)")
	fs.StringVar(&cfg.schemaPath, "schema", "", "YAML entity declarations (required)")
	fs.StringVar(&cfg.backend, "backend", "log", "storage backend: log or pebble")
	fs.StringVar(&cfg.compression, "compression", "none", "record compression: none, lz4 or zstd")
	fs.StringVar(&cfg.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	fs.BoolVar(&cfg.async, "async", false, "skip fsync on commit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.dir == "" || cfg.schemaPath == "" || fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return errUsage
	}

	s, err := openStore(cfg, stderr)
	if err != nil {
		return err
	}
	err = cmd(ctx, &env{store: s, out: stdout, errOut: stderr}, fs.Args()[1:])
	return errors.Join(err, s.Close())
}

func openStore(cfg cliConfig, stderr io.Writer) (*boxdb.Store, error) {
	entities, err := schema.LoadYAMLFile(cfg.schemaPath)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	backend, err := boxdb.ParseBackend(cfg.backend)
	if err != nil {
		return nil, err
	}
	compression, err := codec.ParseCompression(cfg.compression)
	if err != nil {
		return nil, err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.logLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	durability := boxdb.DurabilitySync
	if cfg.async {
		durability = boxdb.DurabilityAsync
	}

	return boxdb.Open(cfg.dir, entities,
		boxdb.WithLogger(boxdb.NewLogger(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))),
		boxdb.WithBackend(backend),
		boxdb.WithCompression(compression),
		boxdb.WithDurability(durability),
	)
}
