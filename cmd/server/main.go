package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"resumable-upload-core/pkg/config"
	"resumable-upload-core/pkg/coordinator"
	"resumable-upload-core/pkg/janitor"
	"resumable-upload-core/pkg/logging"
	"resumable-upload-core/pkg/metadata"
	"resumable-upload-core/pkg/metadata/memstore"
	"resumable-upload-core/pkg/metadata/remotestore"
	"resumable-upload-core/pkg/server"
	"resumable-upload-core/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logConfig := logging.LogConfig{
		ServiceName: cfg.ServerID,
		LogLevel:    cfg.LogLevel,
		OutputPaths: []string{"stdout"},
		Development: false,
	}
	logger, err := logging.GetLogger(logConfig)
	if err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Info("starting upload coordinator",
		zap.Int("port", cfg.Port),
		zap.String("upload_dir", cfg.UploadDir),
		zap.String("scratch_dir", cfg.ScratchDir))

	if err := os.MkdirAll(cfg.ScratchDir, 0755); err != nil {
		logger.Error("failed to create scratch directory", zap.Error(err))
		os.Exit(1)
	}
	files, err := storage.NewTargetFileStore(cfg.UploadDir)
	if err != nil {
		logger.Error("failed to create upload directory", zap.Error(err))
		os.Exit(1)
	}

	store := newStore(cfg, logger)

	coord := coordinator.New(store, files, cfg.ScratchDir, logger, cfg.ServerID)

	j := janitor.New(store, files, janitor.Config{
		ScratchDir:       cfg.ScratchDir,
		SessionRetention: cfg.SessionRetention,
		ScratchRetention: cfg.ScratchRetention,
		Interval:         cfg.JanitorInterval,
	}, logger, cfg.ServerID)

	ctx, cancelJanitor := context.WithCancel(context.Background())
	go j.Run(ctx)

	srv := server.New(server.Config{
		ServerID:    cfg.ServerID,
		Coordinator: coord,
		Logger:      logger,
	})

	go func() {
		if err := srv.Run(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error("server failed", zap.Error(err))
			os.Exit(1)
		}
	}()

	waitForShutdown(logger, cancelJanitor)
}

// newStore wires the in-process memstore by default, or an HTTP-backed
// remotestore when METADATA_STORE_URL (or the legacy MONGO_URI alias) is
// set.
func newStore(cfg config.Config, logger *logging.Logger) metadata.Store {
	if cfg.MetadataStoreURL == "" {
		logger.Info("using in-process metadata store")
		return memstore.New()
	}
	logger.Info("using remote metadata store", zap.String("url", cfg.MetadataStoreURL))
	return remotestore.New(remotestore.DefaultConfig(cfg.MetadataStoreURL))
}

func waitForShutdown(logger *logging.Logger, cancelJanitor context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	cancelJanitor()
}

