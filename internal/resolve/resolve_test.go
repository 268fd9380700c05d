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

package resolve

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yplabs-ltd/codepush-server/internal/blob"
	"github.com/yplabs-ltd/codepush-server/internal/log"
	"github.com/yplabs-ltd/codepush-server/internal/objectstore/memstore"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

var packageColumnNames = []string{
	"id", "deployment_id", "label", "app_version", "description", "is_disabled",
	"is_mandatory", "rollout", "size", "package_hash", "blob_path",
	"manifest_blob_path", "release_method", "original_label",
	"original_deployment", "released_by", "upload_time", "deleted_at",
}

func packageRows(pkgs ...store.Package) *sqlmock.Rows {
	rows := sqlmock.NewRows(packageColumnNames)
	for _, p := range pkgs {
		rows.AddRow(p.ID, p.DeploymentID, p.Label, p.AppVersion, p.Description, p.IsDisabled,
			p.IsMandatory, p.Rollout, p.Size, p.PackageHash, p.BlobPath,
			p.ManifestBlobPath, p.ReleaseMethod, p.OriginalLabel,
			p.OriginalDeployment, p.ReleasedBy, p.UploadTime, p.DeletedAt)
	}
	return rows
}

func newTestResolver(t *testing.T) (*Resolver, sqlmock.Sqlmock, *blob.Service) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(sqlx.NewDb(db, "postgres"))
	b := blob.New(memstore.New("https://blobs.test/"), log.NopLogger{})
	return New(s, b), mock, b
}

func expectDeployment(mock sqlmock.Sqlmock, key, depID string) {
	mock.ExpectQuery(`SELECT (.+) FROM deployments WHERE`).
		WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"id", "app_id", "name", "key", "created_time", "deleted_at"}).
			AddRow(depID, "app-1", "Production", key, time.Now(), nil))
}

func TestResolveEmptyHistoryRunsBinaryVersion(t *testing.T) {
	r, mock, _ := newTestResolver(t)
	expectDeployment(mock, "dk_empty", "dep-1")
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).WillReturnRows(sqlmock.NewRows(packageColumnNames))

	info, err := r.Resolve(context.Background(), Query{DeploymentKey: "dk_empty", AppVersion: "1.0.0"})
	require.NoError(t, err)
	assert.False(t, info.IsAvailable)
	assert.True(t, info.ShouldRunBinaryVersion)
}

func TestResolveServesLatestSatisfyingRelease(t *testing.T) {
	r, mock, b := newTestResolver(t)
	expectDeployment(mock, "dk_prod", "dep-1")

	require.NoError(t, b.PutAt(context.Background(), "apps/app-1/deployments/dep-1/v1.zip", bytes.NewReader([]byte("v1")), 2, nil))

	pkg := store.Package{
		ID: "pkg-1", DeploymentID: "dep-1", Label: "v1", AppVersion: "1.0.0",
		Size: 2, PackageHash: "hash-1", BlobPath: "apps/app-1/deployments/dep-1/v1.zip",
		ReleaseMethod: store.ReleaseMethodUpload, UploadTime: time.Now(),
	}
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).WillReturnRows(packageRows(pkg))
	mock.ExpectQuery(`SELECT (.+) FROM package_diffs WHERE`).WillReturnRows(sqlmock.NewRows([]string{"id", "package_id", "source_package_hash", "size", "blob_path"}))

	info, err := r.Resolve(context.Background(), Query{
		DeploymentKey: "dk_prod", AppVersion: "1.0.0", PackageHash: "old-hash",
	})
	require.NoError(t, err)
	assert.True(t, info.IsAvailable)
	assert.Equal(t, "v1", info.Label)
	assert.Equal(t, "hash-1", info.PackageHash)
	assert.NotEmpty(t, info.DownloadURL)
}

func TestResolveClientAlreadyCurrent(t *testing.T) {
	r, mock, _ := newTestResolver(t)
	expectDeployment(mock, "dk_prod", "dep-1")

	pkg := store.Package{
		ID: "pkg-1", DeploymentID: "dep-1", Label: "v1", AppVersion: "1.0.0",
		Size: 2, PackageHash: "hash-1", BlobPath: "apps/app-1/deployments/dep-1/v1.zip",
		ReleaseMethod: store.ReleaseMethodUpload, UploadTime: time.Now(),
	}
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).WillReturnRows(packageRows(pkg))

	info, err := r.Resolve(context.Background(), Query{
		DeploymentKey: "dk_prod", AppVersion: "1.0.0", PackageHash: "hash-1",
	})
	require.NoError(t, err)
	assert.False(t, info.IsAvailable)
	assert.False(t, info.UpdateAppVersion)
}

func TestResolveRolloutExcludesClientWithoutUniqueID(t *testing.T) {
	r, mock, b := newTestResolver(t)
	expectDeployment(mock, "dk_prod", "dep-1")
	require.NoError(t, b.PutAt(context.Background(), "apps/app-1/deployments/dep-1/v1.zip", bytes.NewReader([]byte("v1")), 2, nil))

	pkg := store.Package{
		ID: "pkg-1", DeploymentID: "dep-1", Label: "v1", AppVersion: "1.0.0",
		Rollout: sql.NullInt32{Int32: 50, Valid: true},
		Size:    2, PackageHash: "hash-1", BlobPath: "apps/app-1/deployments/dep-1/v1.zip",
		ReleaseMethod: store.ReleaseMethodUpload, UploadTime: time.Now(),
	}
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).WillReturnRows(packageRows(pkg))
	mock.ExpectQuery(`SELECT (.+) FROM package_diffs WHERE`).WillReturnRows(sqlmock.NewRows([]string{"id", "package_id", "source_package_hash", "size", "blob_path"}))

	info, err := r.Resolve(context.Background(), Query{
		DeploymentKey: "dk_prod", AppVersion: "1.0.0", PackageHash: "old-hash",
	})
	require.NoError(t, err)
	assert.False(t, info.IsAvailable)
}

func TestResolveDisabledReleaseSkippedForSatisfying(t *testing.T) {
	r, mock, b := newTestResolver(t)
	expectDeployment(mock, "dk_prod", "dep-1")
	require.NoError(t, b.PutAt(context.Background(), "apps/app-1/deployments/dep-1/v1.zip", bytes.NewReader([]byte("v1")), 2, nil))

	v2Disabled := store.Package{
		ID: "pkg-2", DeploymentID: "dep-1", Label: "v2", AppVersion: "1.0.0", IsDisabled: true,
		Size: 2, PackageHash: "hash-2", BlobPath: "apps/app-1/deployments/dep-1/v2.zip",
		ReleaseMethod: store.ReleaseMethodUpload, UploadTime: time.Now().Add(time.Minute),
	}
	v1 := store.Package{
		ID: "pkg-1", DeploymentID: "dep-1", Label: "v1", AppVersion: "1.0.0",
		Size: 2, PackageHash: "hash-1", BlobPath: "apps/app-1/deployments/dep-1/v1.zip",
		ReleaseMethod: store.ReleaseMethodUpload, UploadTime: time.Now(),
	}
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).WillReturnRows(packageRows(v1, v2Disabled))
	mock.ExpectQuery(`SELECT (.+) FROM package_diffs WHERE`).WillReturnRows(sqlmock.NewRows([]string{"id", "package_id", "source_package_hash", "size", "blob_path"}))

	info, err := r.Resolve(context.Background(), Query{
		DeploymentKey: "dk_prod", AppVersion: "1.0.0", PackageHash: "old-hash",
	})
	require.NoError(t, err)
	assert.True(t, info.IsAvailable)
	assert.Equal(t, "v1", info.Label)
}
