package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"fuelwatch-backend/config"
	"fuelwatch-backend/internal/api"
	"fuelwatch-backend/internal/auth"
	"fuelwatch-backend/internal/db"
	"fuelwatch-backend/internal/fuelapi"
	"fuelwatch-backend/internal/notification"
	"fuelwatch-backend/internal/store"
	syncengine "fuelwatch-backend/internal/sync"
)

var configPath string

func main() {
	log.SetPrefix("fuelwatch ")
	log.SetFlags(log.LstdFlags)

	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "fuelwatchd",
		Short:         "UK fuel-station and price sync service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "./config/config.yaml"
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "path to the YAML configuration file")

	root.AddCommand(serveCmd(), syncCmd())

	if err := root.Execute(); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and wires the database, store, upstream
// client, and sync engine.
func bootstrap(withPool bool) (*config.Config, store.Store, *syncengine.Engine, *webpush.Options, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	log.Printf("configuration loaded from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	appStore := store.NewGormStore(gormDB, store.Options{
		StationChunkSize: cfg.Sync.StationChunkSize,
		PriceChunkSize:   cfg.Sync.PriceChunkSize,
		LookupChunkSize:  cfg.Sync.LookupChunkSize,
		WriteRetries:     cfg.Sync.WriteRetries,
		RetryBackoff:     time.Duration(cfg.Sync.RetryBackoffSeconds) * time.Second,
	})

	tokens := auth.NewTokenProvider(cfg.FuelAPI.TokenURL, cfg.FuelAPI.ClientID, cfg.FuelAPI.ClientSecret, nil)
	client := fuelapi.NewClient(&cfg.FuelAPI, tokens)

	var webpushOptions *webpush.Options
	var pool *notification.WorkerPool
	if withPool && cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			return nil, nil, nil, nil, errors.New("push is enabled but VAPID keys are not configured")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, appStore.DB(), webpushOptions)
	}

	engine := syncengine.NewEngine(cfg, appStore, client, pool)
	return cfg, appStore, engine, webpushOptions, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic sync loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, appStore, engine, webpushOptions, err := bootstrap(true)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go engine.Run(ctx)

			router := api.NewRouter(&cfg.Server, appStore, engine, webpushOptions)
			server := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
				Handler: router,
			}

			go func() {
				log.Printf("HTTP server starting on port %d", cfg.Server.Port)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("HTTP server ListenAndServe: %v", err)
				}
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			log.Println("Shutdown signal received, stopping services...")
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("HTTP server shutdown: %w", err)
			}

			log.Println("Server gracefully stopped")
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	syncRoot := &cobra.Command{
		Use:   "sync",
		Short: "Run sync operations",
	}

	syncRoot.AddCommand(&cobra.Command{
		Use:   "stations",
		Short: "Run a full station-metadata sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, engine, _, err := bootstrap(false)
			if err != nil {
				return err
			}
			result := engine.SyncStations(cmd.Context())
			printJSON(result)
			if !result.Success {
				return fmt.Errorf("station sync failed: %s", result.Error)
			}
			return nil
		},
	})

	var sinceFlag string
	pricesCmd := &cobra.Command{
		Use:   "prices",
		Short: "Run an incremental price sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			var since *time.Time
			if sinceFlag != "" {
				t, err := time.Parse(time.RFC3339, sinceFlag)
				if err != nil {
					return fmt.Errorf("invalid --since value %q: %w", sinceFlag, err)
				}
				since = &t
			}

			_, _, engine, _, err := bootstrap(false)
			if err != nil {
				return err
			}
			result := engine.SyncPrices(cmd.Context(), since)
			printJSON(result)
			if !result.Success {
				return fmt.Errorf("price sync failed: %s", result.Error)
			}
			return nil
		},
	}
	pricesCmd.Flags().StringVar(&sinceFlag, "since", "", "RFC3339 lower bound; defaults to the stored watermark")
	syncRoot.AddCommand(pricesCmd)

	var intervalMinutes int
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the sync loop without the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, engine, _, err := bootstrap(true)
			if err != nil {
				return err
			}
			if intervalMinutes > 0 {
				cfg.Sync.IntervalMinutes = intervalMinutes
				cfg.Sync.Interval = time.Duration(intervalMinutes) * time.Minute
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engine.Run(ctx)
			log.Println("Sync daemon stopped")
			return nil
		},
	}
	daemonCmd.Flags().IntVar(&intervalMinutes, "interval-minutes", 0, "override the configured sync interval")
	syncRoot.AddCommand(daemonCmd)

	return syncRoot
}

// printJSON writes the machine-readable summary for programmatic callers.
func printJSON(v any) {
	out, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal result: %v", err)
		return
	}
	fmt.Println(string(out))
}
