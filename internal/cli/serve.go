package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Coldaine/ShortcutSage/internal/config"
	"github.com/Coldaine/ShortcutSage/internal/daemon"
	"github.com/Coldaine/ShortcutSage/internal/engine"
	"github.com/Coldaine/ShortcutSage/internal/logging"
	"github.com/Coldaine/ShortcutSage/internal/server"
	"github.com/Coldaine/ShortcutSage/internal/store"
	"github.com/Coldaine/ShortcutSage/internal/telemetry"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	Aliases: []string{"serve"},
	Short:   "Run the suggestion daemon and its HTTP API",
	RunE:    runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	logging.Init(os.Stderr, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	// Telemetry is written to SQLite only when enabled; metrics are kept
	// in memory either way.
	var (
		db   *store.DB
		sink telemetry.Sink
	)
	if cfg.Telemetry.Enabled {
		db, err = openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		sink = db
	}
	rec := telemetry.New(sink, telemetry.Options{
		BatchSize:     cfg.Telemetry.BatchSize,
		FlushInterval: cfg.Telemetry.FlushInterval,
	})
	defer rec.Stop()

	loader, err := config.NewLoader(configDir())
	if err != nil {
		return err
	}
	d, err := daemon.New(loader, rec, daemon.Options{
		Engine: engine.Config{
			Window:          cfg.Engine.Window(),
			TopN:            cfg.Engine.TopN,
			Personalization: cfg.Engine.Personalization,
		},
	})
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}
	defer d.Stop()

	srv := server.New(d, db, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "shortcut-sage serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  config: %s\n", loader.Dir())
		if db != nil {
			fmt.Fprintf(os.Stderr, "  db: %s\n", db.Path)
		} else {
			fmt.Fprintf(os.Stderr, "  telemetry: memory only\n")
		}
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-done:
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	// Open SSE streams hold requests; close subscriptions before waiting.
	d.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

// openDB opens the telemetry database named by cfg, or the default path.
func openDB(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
