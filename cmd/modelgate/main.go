// modelgate - model-routing and relay gateway

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ssabihuddin/modelgate/internal/api"
	"github.com/ssabihuddin/modelgate/internal/domain/audit"
	"github.com/ssabihuddin/modelgate/internal/domain/gateway"
	"github.com/ssabihuddin/modelgate/internal/domain/history"
	"github.com/ssabihuddin/modelgate/internal/domain/registry"
	"github.com/ssabihuddin/modelgate/internal/infra/config"
	"github.com/ssabihuddin/modelgate/internal/infra/eventbus"
	"github.com/ssabihuddin/modelgate/internal/infra/process"
	"github.com/ssabihuddin/modelgate/internal/infra/relay"
	"github.com/ssabihuddin/modelgate/internal/infra/sqlite"
	"github.com/ssabihuddin/modelgate/internal/server"
	"github.com/ssabihuddin/modelgate/internal/version"
)

const defaultConfigPath = "modelgate.json"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("modelgate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	showVersion := fs.Bool("version", false, "Show version information")
	showHelp := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(out, version.String()) //nolint:errcheck
		return 0
	}

	if *showHelp {
		printHelp(out)
		return 0
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(out, version.String()) //nolint:errcheck
		return 0
	}

	switch rest[0] {
	case "serve":
		return serve(rest[1:], out)
	case "migrate":
		return migrate(rest[1:], out)
	default:
		fmt.Fprintf(out, "unknown command %q\n", rest[0]) //nolint:errcheck
		printHelp(out)
		return 2
	}
}

// serve wires the whole gateway and runs it until SIGINT/SIGTERM.
func serve(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfgPath := fs.String("config", defaultConfigPath, "Path to the configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := config.Open(*cfgPath)
	if err != nil {
		log.Error("config open failed", "path", *cfgPath, "err", err)
		return 1
	}
	cfg := store.Snapshot()

	db, err := sqlite.NewDB(cfg.API.DB)
	if err != nil {
		log.Error("database open failed", "path", cfg.API.DB, "err", err)
		return 1
	}
	if err := sqlite.MigrateUp(db); err != nil {
		log.Error("migrations failed", "err", err)
		db.Close()
		return 1
	}

	reg := registry.New(store)
	sup := process.New(cfg.API.ServerBin, log)
	fwd := relay.NewRouter(log)
	bus := eventbus.New()
	hist := history.NewStore(db)
	gw := gateway.NewService(reg, sup, fwd, hist, bus, store, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := audit.NewRecorder(db, log)
	go recorder.Start(ctx, bus)

	router := api.NewRouter(api.Deps{Gateway: gw, Registry: reg, Relay: fwd, Store: store})

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.API.Host
	srvCfg.Port = cfg.API.Port
	srv := server.NewServer(router, db, srvCfg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()
	log.Info("modelgate listening", "addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port), "config", *cfgPath)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop the supervised model server first, then drain the HTTP server.
	// The cleared pid persists so a restart does not chase a stale process.
	if name, pid := reg.LivePID(); pid != 0 {
		if err := sup.Stop(shutdownCtx, pid); err != nil {
			log.Error("model server stop failed", "pid", pid, "err", err)
		}
		if err := reg.SetPID(name, 0); err != nil {
			log.Error("clearing pid failed", "model", name, "err", err)
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "err", err)
		return 1
	}
	log.Info("shutdown complete")
	return 0
}

// migrate applies pending migrations and reports the schema version.
func migrate(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfgPath := fs.String("config", defaultConfigPath, "Path to the configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store, err := config.Open(*cfgPath)
	if err != nil {
		fmt.Fprintf(out, "config open failed: %v\n", err) //nolint:errcheck
		return 1
	}

	db, err := sqlite.NewDB(store.Snapshot().API.DB)
	if err != nil {
		fmt.Fprintf(out, "database open failed: %v\n", err) //nolint:errcheck
		return 1
	}
	defer db.Close()

	if err := sqlite.MigrateUp(db); err != nil {
		fmt.Fprintf(out, "migrations failed: %v\n", err) //nolint:errcheck
		return 1
	}

	ver, err := sqlite.MigrationVersion(db)
	if err != nil {
		fmt.Fprintf(out, "reading schema version failed: %v\n", err) //nolint:errcheck
		return 1
	}
	fmt.Fprintf(out, "migrations applied, schema version %d\n", ver) //nolint:errcheck
	return 0
}

func printHelp(out io.Writer) {
	helpText := `modelgate - model-routing and relay gateway

Usage:
  modelgate [options] [command]

Options:
  --version    Show version information
  --help       Show this help message

Commands:
  serve        Start the gateway (--config modelgate.json)
  migrate      Apply database migrations (--config modelgate.json)

Examples:
  modelgate --version
  modelgate serve --config /etc/modelgate/modelgate.yaml
  modelgate migrate`
	fmt.Fprintln(out, helpText) //nolint:errcheck
}
