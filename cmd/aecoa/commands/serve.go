package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/aecoa/aecoa/am"
	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/gate"
	"github.com/aecoa/aecoa/logger"
	"github.com/aecoa/aecoa/server"
	"github.com/aecoa/aecoa/sym"
	"github.com/aecoa/aecoa/version"
)

// ServeCmd starts the review server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   sym.Serve + " Serve runs over HTTP and stream gate events",
	Long: sym.Serve + ` serve — Review server

Exposes runs, approvals and results over HTTP, streams gate events over /ws
and Prometheus metrics on /metrics. Evaluation, gate and rate-limit settings
are reloaded when the active config file changes.`,
	RunE: runServe,
}

var servePort int

func init() {
	ServeCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dbPath := databasePath(cmd, cfg)

	database, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	p := newPipeline(cfg, gate.NewStore(database))
	srv := server.New(server.Options{
		Pipeline:           p,
		Logger:             logger.ComponentLogger("server"),
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		MutationsPerSecond: cfg.Server.MutationsPerSecond,
	})

	port := cfg.GetServerPort()
	if servePort != 0 {
		port = servePort
	}

	if watchConfig(cmd, srv) {
		defer func() {
			if w := am.GetGlobalWatcher(); w != nil {
				_ = w.Stop()
			}
		}()
	}

	pterm.DefaultSection.Printf("%s aecoa %s", sym.Serve, version.Get().Short())
	pterm.Info.Printf("Database:     %s\n", dbPath)
	pterm.Info.Printf("Listening:    http://localhost:%d\n", port)
	pterm.Info.Printf("Auto-advance: %t\n", cfg.Gate.AutoAdvance)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(port)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("Force shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}

// watchConfig hot-applies evaluation, gate and rate-limit settings and
// registers the watcher globally. Returns false when nothing is watched.
func watchConfig(cmd *cobra.Command, srv *server.Server) bool {
	path, _ := cmd.Flags().GetString("config")
	explicit := path != ""
	if !explicit {
		path = am.ActiveConfigPath()
	}
	if path == "" {
		return false
	}

	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		logger.Warnw("Config hot reload disabled", "path", path, "error", err)
		return false
	}
	if explicit {
		watcher.SetLoader(func() (*am.Config, error) { return am.LoadFromFile(path) })
	}

	watcher.OnReload(func(cfg *am.Config) error {
		srv.Pipeline().SetEvaluator(newEvaluator(cfg))
		srv.Pipeline().SetAutoAdvance(cfg.Gate.AutoAdvance)
		srv.SetMutationRate(cfg.Server.MutationsPerSecond)
		logger.Infow("Applied reloaded configuration",
			"workers", cfg.GetWorkers(),
			"auto_advance", cfg.Gate.AutoAdvance,
		)
		return nil
	})
	am.SetGlobalWatcher(watcher)
	watcher.Start()
	return true
}
