package main

import (
	"context"
	"flag"

	"github.com/tobsdb/rtable/internal/auth"
	"github.com/tobsdb/rtable/internal/config"
	"github.com/tobsdb/rtable/internal/conn"
	"github.com/tobsdb/rtable/internal/metrics"
	"github.com/tobsdb/rtable/pkg"
)

func main() {
	config_path := flag.String("config", "", "path to config file")
	addr := flag.String("addr", "", "listening address (default :7085)")
	backend := flag.String("backend", "", "memory, redis or bolt")
	redis_addr := flag.String("redis", "", "redis address")
	bolt_path := flag.String("db", "", "bolt db path")
	tables := flag.String("tables", "", `declared tables, e.g. "users=age,score;posts=created"`)
	log_level := flag.String("log", "", "none, error, info or debug")

	flag.Parse()

	cfg, err := config.Load(*config_path)
	if err != nil {
		pkg.FatalLog(err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "backend":
			cfg.Backend = config.Backend(*backend)
		case "redis":
			cfg.Redis.Addr = *redis_addr
		case "db":
			cfg.Bolt.Path = *bolt_path
		case "log":
			cfg.LogLevel = *log_level
		case "tables":
			t, err := config.ParseTables(*tables)
			if err != nil {
				pkg.FatalLog(err)
			}
			cfg.Tables = append(cfg.Tables, t...)
		}
	})
	pkg.SetLogLevel(pkg.ParseLogLevel(cfg.LogLevel))

	ctx := context.Background()
	st, err := cfg.OpenStore(ctx)
	if err != nil {
		pkg.FatalLog(err)
	}

	users := auth.NewUsers()
	if cfg.Username != "" {
		u, err := auth.NewUser(cfg.Username, cfg.Password, auth.RoleAdmin)
		if err != nil {
			pkg.FatalLog(err)
		}
		if err := users.Add(u); err != nil {
			pkg.FatalLog(err)
		}
	} else {
		pkg.WarnLog("no username set; connections are not authenticated")
	}

	srv := conn.NewServer(users, conn.NewTables(metrics.Instrument(st), cfg.Workers, cfg.Codec, cfg.Tables))
	pkg.InfoLog("using", cfg.Backend, "backend with", len(cfg.Tables), "declared tables")
	if err := srv.Listen(ctx, cfg.Addr); err != nil {
		pkg.FatalLog(err)
	}
}
