// CLAUDE:SUMMARY visedit binary: "serve" runs the visual editor (sandbox, controller, HTTP+MCP API), "store" runs the SQLite page service.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/visedit/audit"
	"github.com/hazyhaar/visedit/backend"
	"github.com/hazyhaar/visedit/bus"
	"github.com/hazyhaar/visedit/config"
	"github.com/hazyhaar/visedit/controller"
	"github.com/hazyhaar/visedit/dbopen"
	"github.com/hazyhaar/visedit/pagestore"
	"github.com/hazyhaar/visedit/persist"
	"github.com/hazyhaar/visedit/sandbox"
	"github.com/hazyhaar/visedit/server"
	"github.com/hazyhaar/visedit/shield"
)

const usage = `usage: visedit <serve|store> [-config path] [-log-level level]

  serve   visual editor API (HTTP + MCP) over a sandboxed page rendering
  store   SQLite page service (generate, pages, edit, visual-edit saves)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	role := os.Args[1]

	fs := flag.NewFlagSet(role, flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("VISEDIT_CONFIG"), "YAML configuration file")
	logLevel := fs.String("log-level", "", "debug, info, warn or error (overrides the configuration)")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch role {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "store":
		err = store(ctx, cfg, logger)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("visedit: exit", "role", role, "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	be, trail, closeBackend, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	b := bus.New(cfg.Bus.Capacity, bus.WithLogger(logger))
	defer b.Close()

	sb, err := openSandbox(ctx, cfg, b, logger)
	if err != nil {
		return err
	}
	defer sb.Close()

	opts := []controller.Option{
		controller.WithLogger(logger),
		controller.WithSync(persist.New(be,
			persist.WithTimeout(cfg.Persist.Timeout),
			persist.WithLogger(logger),
		)),
	}
	if trail != nil {
		opts = append(opts, controller.WithAudit(trail))
	}
	ctl := controller.New(be, sb, b, opts...)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(ctl, server.WithLogger(logger)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctl.Run(gctx) })
	g.Go(func() error {
		st, err := ctl.Load(gctx)
		if err != nil {
			logger.Warn("visedit: initial page load failed", "error", err)
			return nil
		}
		logger.Info("visedit: pages loaded", "pages", len(st.Pages))
		return nil
	})
	g.Go(func() error {
		logger.Info("visedit: listening", "addr", cfg.Server.Addr, "sandbox", cfg.Sandbox.Kind)
		return listen(httpSrv)
	})
	g.Go(func() error { return shutdown(gctx, httpSrv) })
	return g.Wait()
}

// openBackend returns the remote page service when one is configured,
// otherwise the local store served in-process. The audit logger is nil
// when auditing is off.
func openBackend(cfg *config.Config, logger *slog.Logger) (controller.Backend, *audit.SQLiteLogger, func(), error) {
	if cfg.Backend.URL == "" {
		ls, err := openService(cfg, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return ls.svc, ls.audit, ls.close, nil
	}

	client := backend.New(cfg.Backend.URL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
		backend.WithLogger(logger),
	)
	if cfg.Audit.Disabled || cfg.Audit.Path == "" {
		return client, nil, func() {}, nil
	}
	db, err := dbopen.Open(cfg.Audit.Path, dbopen.WithMkdirAll(), dbopen.WithSchema(audit.Schema))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	trail, err := startAudit(db, logger)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return client, trail, func() { trail.Close(); db.Close() }, nil
}

type localStore struct {
	svc   *pagestore.Service
	audit *audit.SQLiteLogger
	close func()
}

// openService opens the page store and its audit trail, which shares the
// store database unless audit.path names another file.
func openService(cfg *config.Config, logger *slog.Logger) (*localStore, error) {
	st, err := pagestore.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open page store: %w", err)
	}
	ls := &localStore{close: func() { st.Close() }}

	opts := []pagestore.Option{pagestore.WithLogger(logger)}
	if !cfg.Audit.Disabled {
		db := st.DB
		if cfg.Audit.Path != "" {
			if db, err = dbopen.Open(cfg.Audit.Path, dbopen.WithMkdirAll(), dbopen.WithSchema(audit.Schema)); err != nil {
				st.Close()
				return nil, fmt.Errorf("open audit db: %w", err)
			}
		}
		trail, err := startAudit(db, logger)
		if err != nil {
			if db != st.DB {
				db.Close()
			}
			st.Close()
			return nil, err
		}
		ls.audit = trail
		ls.close = func() {
			trail.Close()
			if db != st.DB {
				db.Close()
			}
			st.Close()
		}
		opts = append(opts, pagestore.WithAudit(trail))
	}

	if cfg.Store.GeneratorURL != "" {
		opts = append(opts, pagestore.WithGenerator(backend.New(cfg.Store.GeneratorURL,
			backend.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
			backend.WithLogger(logger),
		)))
	} else {
		logger.Warn("visedit: no generator configured, generation and edit-by-prompt are disabled")
	}
	ls.svc = pagestore.NewService(st, opts...)
	return ls, nil
}

func startAudit(db *sql.DB, logger *slog.Logger) (*audit.SQLiteLogger, error) {
	trail := audit.NewSQLiteLogger(db, audit.WithLogger(logger))
	if err := trail.Init(); err != nil {
		return nil, err
	}
	return trail, nil
}

func openSandbox(ctx context.Context, cfg *config.Config, b *bus.Bus, logger *slog.Logger) (sandbox.Sandbox, error) {
	if cfg.Sandbox.Kind == config.SandboxStatic {
		return sandbox.NewStatic(func(d []byte) { b.Post(d) }, sandbox.WithStaticLogger(logger)), nil
	}
	sb, err := sandbox.NewBrowser(ctx, sandbox.BrowserConfig{
		RemoteURL:        cfg.Sandbox.Remote,
		Bin:              cfg.Sandbox.Bin,
		Stealth:          cfg.Sandbox.Stealth,
		ResourceBlocking: cfg.Sandbox.ResourceBlocking,
		RecycleInterval:  cfg.Sandbox.RecycleInterval,
		MemoryLimit:      cfg.Sandbox.MemoryLimit,
		ClickTimeout:     cfg.Sandbox.ClickTimeout,
		Logger:           logger,
	}, func(d []byte) { b.Post(d) })
	if err != nil {
		return nil, err
	}
	return sb, nil
}

func store(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ls, err := openService(cfg, logger)
	if err != nil {
		return err
	}
	defer ls.close()

	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(logger) {
		r.Use(mw)
	}
	r.Mount("/", ls.svc.Handler())

	httpSrv := &http.Server{
		Addr:              cfg.Store.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("visedit: store listening", "addr", cfg.Store.Addr, "db", cfg.Store.Path)
		return listen(httpSrv)
	})
	g.Go(func() error { return shutdown(gctx, httpSrv) })
	return g.Wait()
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func shutdown(ctx context.Context, srv *http.Server) error {
	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
