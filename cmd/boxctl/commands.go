package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hupe1980/boxdb"
	"github.com/hupe1980/boxdb/codec"
	"github.com/hupe1980/boxdb/model"
	"github.com/hupe1980/boxdb/query"
	"github.com/hupe1980/boxdb/schema"
)

type env struct {
	store  *boxdb.Store
	out    io.Writer
	errOut io.Writer
}

type command func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{
	"count":   countCmd,
	"get":     getCmd,
	"dump":    dumpCmd,
	"query":   queryCmd,
	"backup":  backupCmd,
	"restore": restoreCmd,
	"compact": compactCmd,
}

func (e *env) entity(name string) (*schema.Entity, error) {
	ent, ok := e.store.Entity(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity %q", boxdb.ErrInvalidArgument, name)
	}
	return ent, nil
}

// printRecord writes rec as one JSON object. The identifier property is
// included under its declared name.
func (e *env) printRecord(ent *schema.Entity, rec *model.Record) error {
	obj := make(map[string]any, len(rec.Values)+1)
	obj[ent.IDProperty().Name()] = rec.ID
	for name, v := range rec.Values {
		obj[name] = v.Interface()
	}
	data, err := codec.Default.Marshal(obj)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.out, string(data))
	return err
}

func countCmd(_ context.Context, e *env, args []string) error {
	entities := e.store.Entities()
	if len(args) > 0 {
		ent, err := e.entity(args[0])
		if err != nil {
			return err
		}
		entities = []*schema.Entity{ent}
	}
	for _, ent := range entities {
		n, err := e.store.Count(ent)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "%s\t%d\n", ent.Name(), n)
	}
	return nil
}

func getCmd(_ context.Context, e *env, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: get <entity> <id>", errUsage)
	}
	ent, err := e.entity(args[0])
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: id %q", boxdb.ErrInvalidArgument, args[1])
	}
	return e.store.View(func(tx *boxdb.Tx) error {
		cur, err := tx.Cursor(ent)
		if err != nil {
			return err
		}
		rec, err := cur.Get(id)
		if err != nil {
			return err
		}
		return e.printRecord(ent, rec)
	})
}

func dumpCmd(_ context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: dump <entity>", errUsage)
	}
	ent, err := e.entity(args[0])
	if err != nil {
		return err
	}
	return e.store.View(func(tx *boxdb.Tx) error {
		cur, err := tx.Cursor(ent)
		if err != nil {
			return err
		}
		for rec, err := range cur.All() {
			if err != nil {
				return err
			}
			if err := e.printRecord(ent, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// whereFlags collects repeated -where name=value conditions.
type whereFlags []string

func (w *whereFlags) String() string { return strings.Join(*w, ",") }

func (w *whereFlags) Set(s string) error {
	if !strings.Contains(s, "=") {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	*w = append(*w, s)
	return nil
}

// parseWhere turns name=value pairs into equality conditions, parsing each
// value with the property's type.
func parseWhere(ent *schema.Entity, pairs []string, fold bool) ([]query.Condition, error) {
	conds := make([]query.Condition, 0, len(pairs))
	for _, pair := range pairs {
		name, raw, _ := strings.Cut(pair, "=")
		p, ok := ent.PropertyByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no property %q", boxdb.ErrInvalidArgument, ent.Name(), name)
		}
		v, err := p.Type().ParseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", boxdb.ErrInvalidArgument, name, err)
		}
		if v.IsNull() {
			conds = append(conds, query.IsNull(name))
			continue
		}
		var opts []query.ConditionOption
		if fold && p.Type() == schema.String {
			opts = append(opts, query.CaseInsensitive())
		}
		conds = append(conds, query.Equal(name, v, opts...))
	}
	return conds, nil
}

func queryCmd(_ context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: query <entity> -where name=value", errUsage)
	}
	ent, err := e.entity(args[0])
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(e.errOut)
	var where whereFlags
	fs.Var(&where, "where", "name=value equality condition (repeatable)")
	order := fs.String("order", "", "property to order by; prefix with - for descending")
	limit := fs.Int("limit", 0, "maximum number of records")
	offset := fs.Int("offset", 0, "records to skip")
	fold := fs.Bool("i", false, "compare strings case-insensitively")
	countOnly := fs.Bool("count", false, "print the number of matches only")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	conds, err := parseWhere(ent, where, *fold)
	if err != nil {
		return err
	}
	b := query.New(ent).Where(conds...).Offset(*offset).Limit(*limit)
	if *order != "" {
		if name, ok := strings.CutPrefix(*order, "-"); ok {
			b = b.OrderBy(name, query.Descending)
		} else {
			b = b.OrderBy(*order)
		}
	}
	q, err := b.Build()
	if err != nil {
		return err
	}

	return e.store.View(func(tx *boxdb.Tx) error {
		cur, err := tx.Cursor(ent)
		if err != nil {
			return err
		}
		if *countOnly {
			n, err := cur.CountMatching(q)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(e.out, n)
			return err
		}
		recs, err := cur.Find(q)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := e.printRecord(ent, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func backupCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	fs.SetOutput(e.errOut)
	concurrency := fs.Int("concurrency", 4, "entities exported at once")
	rateLimit := fs.Int64("rate", 0, "bytes per second, 0 for unlimited")
	target, err := parseTargetArgs(fs, args)
	if err != nil {
		return err
	}
	bs, err := openTarget(ctx, target)
	if err != nil {
		return err
	}

	info, err := e.store.Backup(ctx, bs,
		boxdb.WithBackupConcurrency(*concurrency),
		boxdb.WithBackupRateLimit(*rateLimit),
	)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "backup %s: %d records\n", info.ID, info.Records())
	return nil
}

func restoreCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	fs.SetOutput(e.errOut)
	id := fs.String("id", "", "backup id, default is the latest")
	rateLimit := fs.Int64("rate", 0, "bytes per second, 0 for unlimited")
	target, err := parseTargetArgs(fs, args)
	if err != nil {
		return err
	}
	bs, err := openTarget(ctx, target)
	if err != nil {
		return err
	}

	info, err := e.store.Restore(ctx, bs,
		boxdb.WithBackupID(*id),
		boxdb.WithBackupRateLimit(*rateLimit),
	)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "restored %s: %d records\n", info.ID, info.Records())
	return nil
}

// parseTargetArgs accepts the target before or after the flags.
func parseTargetArgs(fs *flag.FlagSet, args []string) (string, error) {
	var target string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		target, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if target == "" && fs.NArg() > 0 {
		target = fs.Arg(0)
	}
	if target == "" {
		return "", fmt.Errorf("%w: %s <target>", errUsage, fs.Name())
	}
	return target, nil
}

func compactCmd(ctx context.Context, e *env, _ []string) error {
	before, err := e.store.SizeOnDisk()
	if err != nil {
		return err
	}
	if err := e.store.Compact(ctx); err != nil {
		return err
	}
	after, err := e.store.SizeOnDisk()
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "compacted: %d -> %d bytes\n", before, after)
	return nil
}
