// cmd/cctv-thumbnails/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sua-org/cctv-thumbnails/internal/config"
	"github.com/sua-org/cctv-thumbnails/internal/core"
	"github.com/sua-org/cctv-thumbnails/internal/mqttclient"
	"github.com/sua-org/cctv-thumbnails/internal/registry"
	"github.com/sua-org/cctv-thumbnails/internal/storage"
	"github.com/sua-org/cctv-thumbnails/internal/supervisor"
	"github.com/sua-org/cctv-thumbnails/internal/worker"
)

var (
	flagTimeout int
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "cctv-thumbnails",
	Short: "Polls traffic camera thumbnails and publishes them to object storage",
	Long: `Long-lived daemon that fetches a still image from every camera in the
asset registry on a fixed interval and uploads it to object storage with
cache metadata. Dead cameras get a placeholder image so the public
thumbnail never goes silently stale.

The registry is read once at startup; restart the process to pick up
new or modified cameras.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().IntVarP(&flagTimeout, "timeout", "t", 0,
		"fetch timeout in seconds (overrides FETCH_TIMEOUT_SECONDS)")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"log every worker cycle, not just errors")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// .env is optional; a missing file is only worth a note.
	if err := godotenv.Load(); err != nil {
		log.Printf("[main] no .env loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if flagTimeout > 0 {
		cfg.FetchTimeout = time.Duration(flagTimeout) * time.Second
	}
	cfg.Verbose = flagVerbose

	fallback, err := os.ReadFile(cfg.FallbackImagePath)
	if err != nil {
		return fmt.Errorf("load fallback image: %w", err)
	}

	store, err := storage.NewMinioStore(storage.Options{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
		UseSSL:    cfg.StorageUseSSL,
	})
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	reg := registry.New(registry.Options{
		AppID:     cfg.KnackAppID,
		APIKey:    cfg.KnackAPIKey,
		Container: cfg.KnackContainer,
		CameraAuth: core.Credentials{
			Username: cfg.CameraUsername,
			Password: cfg.CameraPassword,
		},
	})
	records, err := reg.FetchRecords(context.Background())
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	if len(records) == 0 {
		log.Printf("[main] registry returned no usable camera records")
	}

	var opts []supervisor.Option
	if cfg.MQTTHost != "" {
		mq, err := mqttclient.NewClient(mqttclient.Config{
			Host:     cfg.MQTTHost,
			Port:     cfg.MQTTPort,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			ClientID: "cctv-thumbnails",
		})
		if err != nil {
			log.Printf("[main] status publishing disabled: %v", err)
		} else {
			defer mq.Close()
			opts = append(opts, supervisor.WithStatusPublisher(mq, cfg.MQTTBaseTopic, cfg.StatusInterval))
		}
	}

	sup := supervisor.New(store, fallback, worker.Config{
		PollInterval:         cfg.PollInterval,
		FetchTimeout:         cfg.FetchTimeout,
		MaxFailures:          cfg.MaxFailures,
		InitialJitter:        cfg.InitialJitter,
		CountUploadFailures:  cfg.CountUploadFailures,
		SkipRepeatedFallback: cfg.SkipRepeatedFallback,
		Verbose:              cfg.Verbose,
	}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx, records)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Println("[main] signal received, shutting down...")
	if err := sup.Shutdown(cfg.ShutdownGrace); err != nil {
		log.Printf("[main] %v", err)
	}
	return nil
}
