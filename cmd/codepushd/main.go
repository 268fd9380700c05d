/*
Copyright The CodePush Server Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command codepushd serves the update-check, release and management HTTP
// API described by internal/server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/yplabs-ltd/codepush-server/internal/access"
	"github.com/yplabs-ltd/codepush-server/internal/auth"
	"github.com/yplabs-ltd/codepush-server/internal/blob"
	"github.com/yplabs-ltd/codepush-server/internal/config"
	"github.com/yplabs-ltd/codepush-server/internal/log"
	"github.com/yplabs-ltd/codepush-server/internal/metrics"
	"github.com/yplabs-ltd/codepush-server/internal/objectstore"
	"github.com/yplabs-ltd/codepush-server/internal/objectstore/localdisk"
	"github.com/yplabs-ltd/codepush-server/internal/objectstore/s3"
	"github.com/yplabs-ltd/codepush-server/internal/release"
	"github.com/yplabs-ltd/codepush-server/internal/release/diffworker"
	"github.com/yplabs-ltd/codepush-server/internal/resolve"
	"github.com/yplabs-ltd/codepush-server/internal/server"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "codepushd",
		Short: "Serve the code-push update and release management API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a codepushd.toml configuration file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.NewJSONLogger(os.Stdout, cfg.Debug)
	if cfg.Debug {
		logger = log.NewReadableTextLogger(os.Stdout, true)
	}

	db, err := sqlx.Connect("postgres", cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if n, err := store.Migrate(db.DB); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	} else if n > 0 {
		logger.Warn("applied pending migrations", "count", n)
	}

	objStore, err := buildObjectStore(cfg)
	if err != nil {
		return err
	}

	st := store.New(db)
	blobSvc := blob.New(objStore, logger.With("component", "blob"))
	diffPool := diffworker.New(cfg.DiffWorkerCount, cfg.DiffQueueSize, logger.With("component", "diffworker"))
	defer func() {
		if err := diffPool.Close(); err != nil {
			logger.Warn("diff worker pool finished with errors", "error", err.Error())
		}
	}()

	srv := server.New(
		st,
		blobSvc,
		resolve.New(st, blobSvc),
		release.New(st, blobSvc, diffPool, logger.With("component", "release")),
		metrics.New(st),
		access.New(st),
		auth.NewBearerAccessKey(st),
		logger.With("component", "server"),
	)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Warn("listening", "addr", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Warn("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
	return nil
}

func buildObjectStore(cfg config.Config) (objectstore.Store, error) {
	switch cfg.ObjectStore {
	case "s3":
		return s3.New(cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKeyID, cfg.S3SecretKey, nil), nil
	case "localdisk", "":
		return localdisk.New(cfg.LocalDiskRoot, cfg.BlobURLPrefix)
	default:
		return nil, fmt.Errorf("unknown object_store %q (want s3 or localdisk)", cfg.ObjectStore)
	}
}
