// Command fieldsync runs the offline job-tracking core: local durable
// store, sync queue, and the HTTP surface the UI shell consumes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kpereira/fieldsync/internal/config"
	"github.com/kpereira/fieldsync/internal/connectivity"
	"github.com/kpereira/fieldsync/internal/engine"
	"github.com/kpereira/fieldsync/internal/handlers"
	"github.com/kpereira/fieldsync/internal/logging"
	"github.com/kpereira/fieldsync/internal/realtime"
	"github.com/kpereira/fieldsync/internal/remote"
	"github.com/kpereira/fieldsync/internal/service"
	"github.com/kpereira/fieldsync/internal/store"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:          "fieldsync",
		Short:        "Offline-first job tracking core for field technicians",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./fieldsync.yaml)")

	root.AddCommand(serveCmd(), statusCmd(), clearCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the offline core and its local HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logging.Init(cfg.Log.Level, cfg.Log.File)
			log := logging.Get()

			st := store.New(cfg.DataDir, log)
			if err := st.Open(); err != nil {
				// Degraded mode: reads go network-only, writes fail
				// fast instead of queueing.
				log.WithError(err).Error("offline store unavailable, running degraded")
			} else {
				defer st.Close()
				if pruned, err := st.PruneOlderThan(cfg.CacheRetentionDays); err != nil {
					log.WithError(err).Warn("cache prune failed")
				} else if pruned > 0 {
					log.WithField("pruned", pruned).Info("stale snapshots removed")
				}
			}

			scope := remote.Scope{TenantID: cfg.TenantID, TechnicianID: cfg.TechnicianID}
			rc := remote.NewHTTPClient(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.TenantID,
				&http.Client{Timeout: 30 * time.Second}, log)

			// The shell reports the real signal via POST /connectivity;
			// assume online until told otherwise.
			monitor := connectivity.NewMonitor(true, log)

			eng := engine.New(st, rc, monitor, log)
			eng.Start()
			defer eng.Stop()

			jobs := service.NewJobService(st, rc, monitor, log)

			var listener *realtime.Listener
			if cfg.Remote.WSURL != "" {
				listener = realtime.NewListener(cfg.Remote.WSURL, scope, jobs, log)
				listener.Start()
				defer listener.Stop()
			}

			mux := http.NewServeMux()
			handlers.NewSyncHandler(st, eng, monitor, log).Register(mux)
			handlers.NewJobsHandler(jobs, scope, log).Register(mux)

			srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

			errc := make(chan error, 1)
			go func() {
				log.WithField("addr", cfg.ListenAddr).Info("fieldsync core listening")
				errc <- srv.ListenAndServe()
			}()

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case sig := <-sigc:
				log.WithField("signal", sig.String()).Info("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show offline store and sync queue statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logging.Init("error", "")

			st := store.New(cfg.DataDir, logging.Get())
			if err := st.Open(); err != nil {
				color.Red("offline store: unavailable (%v)", err)
				return err
			}
			defer st.Close()

			stats, err := st.GetStats()
			if err != nil {
				return err
			}

			bold := color.New(color.Bold)
			bold.Println("Offline store")
			fmt.Printf("  cached jobs:    %d\n", stats.CachedJobs)
			fmt.Printf("  cached clients: %d\n", stats.CachedClients)
			if stats.LastCacheAt > 0 {
				fmt.Printf("  last cached:    %s\n", time.Unix(stats.LastCacheAt, 0).Format(time.RFC3339))
			} else {
				fmt.Println("  last cached:    never")
			}

			bold.Println("Sync queue")
			if stats.PendingOperations > 0 {
				color.Yellow("  pending operations: %d", stats.PendingOperations)
			} else {
				color.Green("  pending operations: 0")
			}
			return nil
		},
	}
}

func clearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Wipe all cached data and queued operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes: queued operations would be lost")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logging.Init("error", "")

			st := store.New(cfg.DataDir, logging.Get())
			if err := st.Open(); err != nil {
				return err
			}
			defer st.Close()

			if err := st.ClearAll(); err != nil {
				return err
			}
			color.Green("offline store cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm destroying cached data and queued operations")
	return cmd
}
