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

package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
)

var packageColumns = []string{
	"id", "deployment_id", "label", "app_version", "description", "is_disabled",
	"is_mandatory", "rollout", "size", "package_hash", "blob_path",
	"manifest_blob_path", "release_method", "original_label",
	"original_deployment", "released_by", "upload_time", "deleted_at",
}

// PackageHistory returns the full, ascending-by-upload-time package history
// for a deployment, as consumed directly by the update resolver.
func (s *Store) PackageHistory(ctx context.Context, deploymentID string) ([]Package, error) {
	return packageHistory(ctx, s.db, deploymentID)
}

func packageHistory(ctx context.Context, q sqlx.QueryerContext, deploymentID string) ([]Package, error) {
	query, args, err := psql.Select(packageColumns...).
		From("packages").
		Where("deployment_id = ? AND deleted_at IS NULL", deploymentID).
		OrderBy("upload_time ASC").
		ToSql()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "store: build package history")
	}
	var pkgs []Package
	if err := sqlx.SelectContext(ctx, q, &pkgs, query, args...); err != nil {
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "store: package history")
	}
	return pkgs, nil
}

// PackageDiffs returns every precomputed diff for a package.
func (s *Store) PackageDiffs(ctx context.Context, packageID string) ([]PackageDiff, error) {
	return packageDiffs(ctx, s.db, packageID)
}

func packageDiffs(ctx context.Context, q sqlx.QueryerContext, packageID string) ([]PackageDiff, error) {
	query, args, err := psql.Select("id", "package_id", "source_package_hash", "size", "blob_path").
		From("package_diffs").
		Where("package_id = ?", packageID).
		ToSql()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "store: build package diffs")
	}
	var diffs []PackageDiff
	if err := sqlx.SelectContext(ctx, q, &diffs, query, args...); err != nil {
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "store: package diffs")
	}
	return diffs, nil
}

// Tx is a transaction-scoped handle for the release engine's multi-step
// mutations (commit, promote, rollback, update), each of which must read
// the current state and write the new row atomically.
type Tx struct {
	tx *sqlx.Tx
}

// WithTx runs fn inside a single serializable transaction and returns its
// error, mapping Postgres's serialization-failure SQLSTATE to
// apierrors.Conflict so the caller can retry.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return s.withTx(ctx, func(sqlTx *sqlx.Tx) error {
		return fn(ctx, &Tx{tx: sqlTx})
	})
}

// LatestPackage returns the most recently uploaded non-deleted package in
// a deployment, or a NotFound error if the deployment has no history.
func (t *Tx) LatestPackage(ctx context.Context, deploymentID string) (*Package, error) {
	query, args, err := psql.Select(packageColumns...).
		From("packages").
		Where("deployment_id = ? AND deleted_at IS NULL", deploymentID).
		OrderBy("upload_time DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "store: build latest package")
	}
	var pkg Package
	if err := t.tx.GetContext(ctx, &pkg, query, args...); err != nil {
		if isNoRows(err) {
			return nil, apierrors.New(apierrors.NotFound, "store: deployment has no releases")
		}
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "store: latest package")
	}
	return &pkg, nil
}

// PackageHistory reads the full ascending history within the transaction,
// used by rollback to find the second-most-recent release.
func (t *Tx) PackageHistory(ctx context.Context, deploymentID string) ([]Package, error) {
	return packageHistory(ctx, t.tx, deploymentID)
}

// PackageDiffs reads diffs within the transaction.
func (t *Tx) PackageDiffs(ctx context.Context, packageID string) ([]PackageDiff, error) {
	return packageDiffs(ctx, t.tx, packageID)
}

// GetPackageByLabel looks up a single release by its label within a
// deployment.
func (t *Tx) GetPackageByLabel(ctx context.Context, deploymentID, label string) (*Package, error) {
	query, args, err := psql.Select(packageColumns...).
		From("packages").
		Where("deployment_id = ? AND label = ? AND deleted_at IS NULL", deploymentID, label).
		ToSql()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "store: build get package by label")
	}
	var pkg Package
	if err := t.tx.GetContext(ctx, &pkg, query, args...); err != nil {
		if isNoRows(err) {
			return nil, apierrors.New(apierrors.NotFound, "store: label %q not found", label)
		}
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "store: get package by label")
	}
	return &pkg, nil
}

// CountPackages returns the number of non-deleted packages in a
// deployment, used to assign the next monotonic label.
func (t *Tx) CountPackages(ctx context.Context, deploymentID string) (int, error) {
	query, args, err := psql.Select("count(*)").
		From("packages").
		Where("deployment_id = ? AND deleted_at IS NULL", deploymentID).
		ToSql()
	if err != nil {
		return 0, apierrors.Wrap(apierrors.Internal, err, "store: build count packages")
	}
	var n int
	if err := t.tx.GetContext(ctx, &n, query, args...); err != nil {
		return 0, apierrors.Wrap(apierrors.ConnectionFailed, err, "store: count packages")
	}
	return n, nil
}

// InsertPackage writes a new release row.
func (t *Tx) InsertPackage(ctx context.Context, pkg Package) error {
	query, args, err := psql.Insert("packages").
		Columns(packageColumns...).
		Values(pkg.ID, pkg.DeploymentID, pkg.Label, pkg.AppVersion, pkg.Description, pkg.IsDisabled,
			pkg.IsMandatory, pkg.Rollout, pkg.Size, pkg.PackageHash, pkg.BlobPath,
			pkg.ManifestBlobPath, pkg.ReleaseMethod, pkg.OriginalLabel,
			pkg.OriginalDeployment, pkg.ReleasedBy, pkg.UploadTime, pkg.DeletedAt).
		ToSql()
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "store: build insert package")
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: insert package")
	}
	return nil
}

// UpdatePackageFields patches a subset of mutable fields on an existing
// release (updateRelease); emits no new blob or row.
type UpdatePackageFields struct {
	AppVersion  *string
	Description *string
	IsDisabled  *bool
	IsMandatory *bool
	Rollout     *int32
}

// UpdatePackage applies patch to the package identified by deploymentID
// and label.
func (t *Tx) UpdatePackage(ctx context.Context, deploymentID, label string, patch UpdatePackageFields) error {
	builder := psql.Update("packages").
		Where("deployment_id = ? AND label = ? AND deleted_at IS NULL", deploymentID, label)

	dirty := false
	if patch.AppVersion != nil {
		builder = builder.Set("app_version", *patch.AppVersion)
		dirty = true
	}
	if patch.Description != nil {
		builder = builder.Set("description", *patch.Description)
		dirty = true
	}
	if patch.IsDisabled != nil {
		builder = builder.Set("is_disabled", *patch.IsDisabled)
		dirty = true
	}
	if patch.IsMandatory != nil {
		builder = builder.Set("is_mandatory", *patch.IsMandatory)
		dirty = true
	}
	if patch.Rollout != nil {
		builder = builder.Set("rollout", *patch.Rollout)
		dirty = true
	}
	if !dirty {
		return nil
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "store: build update package")
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: update package")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierrors.New(apierrors.NotFound, "store: label %q not found", label)
	}
	return nil
}

// InsertPackageDiff attaches a precomputed diff archive to a package,
// outside of any transaction. The diff worker pool calls this after the
// commit/promote/rollback response has already been returned ("long
// operations... may be deferred beyond the response").
func (s *Store) InsertPackageDiff(ctx context.Context, diff PackageDiff) error {
	return insertPackageDiff(ctx, s.db, diff)
}

func insertPackageDiff(ctx context.Context, q sqlx.ExecerContext, diff PackageDiff) error {
	query, args, err := psql.Insert("package_diffs").
		Columns("id", "package_id", "source_package_hash", "size", "blob_path").
		Values(diff.ID, diff.PackageID, diff.SourcePackageHash, diff.Size, diff.BlobPath).
		Suffix("ON CONFLICT (package_id, source_package_hash) DO NOTHING").
		ToSql()
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "store: build insert package diff")
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: insert package diff")
	}
	return nil
}

// InsertPackageDiff attaches a precomputed diff archive to a package
// within the transaction.
func (t *Tx) InsertPackageDiff(ctx context.Context, diff PackageDiff) error {
	return insertPackageDiff(ctx, t.tx, diff)
}
