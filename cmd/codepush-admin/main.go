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

// Command codepush-admin is an operator CLI for release management tasks
// that don't need the HTTP API: promoting, rolling back and inspecting a
// deployment's package history and download metrics directly against the
// database and object store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/yplabs-ltd/codepush-server/internal/blob"
	"github.com/yplabs-ltd/codepush-server/internal/config"
	"github.com/yplabs-ltd/codepush-server/internal/log"
	"github.com/yplabs-ltd/codepush-server/internal/metrics"
	"github.com/yplabs-ltd/codepush-server/internal/objectstore"
	"github.com/yplabs-ltd/codepush-server/internal/objectstore/localdisk"
	"github.com/yplabs-ltd/codepush-server/internal/objectstore/s3"
	"github.com/yplabs-ltd/codepush-server/internal/release"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "codepush-admin",
		Short: "Operate on code-push apps, deployments and releases directly",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a codepushd.toml configuration file")

	root.AddCommand(
		newHistoryCommand(),
		newMetricsCommand(),
		newPromoteCommand(),
		newRollbackCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// deps bundles the store and release engine every subcommand needs; it
// opens its own database connection so each invocation is independent.
type deps struct {
	db      *sqlx.DB
	Store   *store.Store
	Release *release.Engine
	Metrics *metrics.Reporter
}

func openDeps() (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Connect("postgres", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	var objStore objectstore.Store
	switch cfg.ObjectStore {
	case "s3":
		objStore = s3.New(cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKeyID, cfg.S3SecretKey, nil)
	case "localdisk", "":
		if objStore, err = localdisk.New(cfg.LocalDiskRoot, cfg.BlobURLPrefix); err != nil {
			db.Close()
			return nil, err
		}
	default:
		db.Close()
		return nil, fmt.Errorf("unknown object_store %q", cfg.ObjectStore)
	}

	st := store.New(db)
	b := blob.New(objStore, log.NopLogger{})
	return &deps{
		db:      db,
		Store:   st,
		Release: release.New(st, b, nil, log.NopLogger{}),
		Metrics: metrics.New(st),
	}, nil
}

func (d *deps) Close() { d.db.Close() }

func requireDeployment(ctx context.Context, d *deps, appName, depName string) (*store.Deployment, error) {
	// depName is looked up as a deployment key, across every account;
	// appName is not looked up and only appears in the error message.
	dep, err := d.Store.GetDeploymentByKey(ctx, depName)
	if err == nil {
		return dep, nil
	}
	return nil, fmt.Errorf("resolve deployment %q on app %q: %w", depName, appName, err)
}

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <deployment-key>",
		Short: "Print the package history for a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := cmd.Context()
			dep, err := d.Store.GetDeploymentByKey(ctx, args[0])
			if err != nil {
				return err
			}
			history, err := d.Store.PackageHistory(ctx, dep.ID)
			if err != nil {
				return err
			}
			return printJSON(history)
		},
	}
	return cmd
}

func newMetricsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics <deployment-key>",
		Short: "Print per-label active/download/install/failure metrics for a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			summary, err := d.Metrics.Summarize(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	return cmd
}

func newPromoteCommand() *cobra.Command {
	var disable, mandatory bool
	var description string
	var rollout int32

	cmd := &cobra.Command{
		Use:   "promote <app> <source-deployment> <dest-deployment>",
		Short: "Promote the latest release of one deployment onto another",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := cmd.Context()
			src, err := requireDeployment(ctx, d, args[0], args[1])
			if err != nil {
				return err
			}
			dst, err := requireDeployment(ctx, d, args[0], args[2])
			if err != nil {
				return err
			}

			overrides := release.PromoteOverrides{}
			if cmd.Flags().Changed("disable") {
				overrides.IsDisabled = &disable
			}
			if cmd.Flags().Changed("mandatory") {
				overrides.IsMandatory = &mandatory
			}
			if cmd.Flags().Changed("description") {
				overrides.Description = &description
			}
			if cmd.Flags().Changed("rollout") {
				overrides.Rollout = &rollout
			}

			pkg, err := d.Release.Promote(ctx, *src, *dst, overrides, "codepush-admin")
			if err != nil {
				return err
			}
			return printJSON(pkg)
		},
	}
	cmd.Flags().BoolVar(&disable, "disable", false, "disable the promoted release")
	cmd.Flags().BoolVar(&mandatory, "mandatory", false, "mark the promoted release mandatory")
	cmd.Flags().StringVar(&description, "description", "", "override the release description")
	cmd.Flags().Int32Var(&rollout, "rollout", 100, "override the rollout percentage")
	return cmd
}

func newRollbackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback <app> <deployment> [target-label]",
		Short: "Roll a deployment back to its previous release, or a named one",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := cmd.Context()
			dep, err := requireDeployment(ctx, d, args[0], args[1])
			if err != nil {
				return err
			}
			target := ""
			if len(args) == 3 {
				target = args[2]
			}
			pkg, err := d.Release.Rollback(ctx, *dep, target, "codepush-admin")
			if err != nil {
				return err
			}
			return printJSON(pkg)
		},
	}
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
