// rtable-reindex rebuilds table indexes from stored rows, repairing drift left
// by interrupted writes.
//
//	rtable-reindex -config rtable.yaml users posts=created
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tobsdb/rtable/internal/config"
	"github.com/tobsdb/rtable/internal/store"
	"github.com/tobsdb/rtable/internal/table"
	"github.com/tobsdb/rtable/pkg"
)

func main() {
	config_path := flag.String("config", "", "path to config file")
	backend := flag.String("backend", "", "memory, redis or bolt")
	redis_addr := flag.String("redis", "", "redis address")
	bolt_path := flag.String("db", "", "bolt db path")
	workers := flag.Int("workers", 0, "fields rebuilt at once (default from config)")
	codec := flag.String("codec", "", "default row codec, json or msgpack (default from config)")

	flag.Parse()
	pkg.SetLogLevel(pkg.LogLevelErrOnly)

	cfg, err := config.Load(*config_path)
	if err != nil {
		pkg.FatalLog(err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = config.Backend(*backend)
		case "redis":
			cfg.Redis.Addr = *redis_addr
		case "db":
			cfg.Bolt.Path = *bolt_path
		case "workers":
			cfg.Workers = *workers
		case "codec":
			cfg.Codec = *codec
		}
	})

	// args name tables, optionally with their index fields; a bare name is
	// looked up in the config
	targets := cfg.Tables
	if flag.NArg() > 0 {
		targets = []config.TableConfig{}
		for _, arg := range flag.Args() {
			t, err := config.ParseTables(arg)
			if err != nil {
				pkg.FatalLog(err)
			}
			for _, tc := range t {
				if declared, ok := cfg.Table(tc.Name); ok && len(tc.OrderBy) == 0 {
					tc = declared
				}
				targets = append(targets, tc)
			}
		}
	}
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "no tables to reindex")
		os.Exit(2)
	}

	ctx := context.Background()
	st, err := cfg.OpenStore(ctx)
	if err != nil {
		pkg.FatalLog(err)
	}

	if !reindex(ctx, st, cfg, targets, os.Stdout) {
		os.Exit(1)
	}
}

// reindex repairs every target table, printing one JSON report per table to
// out, and closes st. It reports whether everything succeeded.
func reindex(ctx context.Context, st store.Store, cfg *config.Config, targets []config.TableConfig, out io.Writer) bool {
	failed := false
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	for _, tc := range targets {
		t, err := table.New(st, tc.Name, tc.OrderBy...)
		if err != nil {
			pkg.ErrorLog(err)
			failed = true
			continue
		}
		codec, err := table.CodecByName(cfg.CodecFor(tc))
		if err != nil {
			pkg.ErrorLog(err)
			failed = true
			continue
		}
		t = t.WithCodec(codec)
		report, err := t.Reindex(ctx, cfg.Workers)
		if err != nil {
			pkg.ErrorLog(err)
			failed = true
		}
		if report != nil {
			if err := enc.Encode(report); err != nil {
				pkg.ErrorLog(err)
				failed = true
			}
		}
	}
	if err := st.Close(); err != nil {
		pkg.ErrorLog(err)
		failed = true
	}
	return !failed
}
