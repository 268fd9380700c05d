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

package release

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/blob"
	"github.com/yplabs-ltd/codepush-server/internal/log"
	"github.com/yplabs-ltd/codepush-server/internal/manifest"
	"github.com/yplabs-ltd/codepush-server/internal/objectstore/memstore"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(sqlx.NewDb(db, "postgres"))
	b := blob.New(memstore.New("https://blobs.test/"), log.NopLogger{})
	return New(s, b, nil, log.NopLogger{}), mock
}

var packageColumnNames = []string{
	"id", "deployment_id", "label", "app_version", "description", "is_disabled",
	"is_mandatory", "rollout", "size", "package_hash", "blob_path",
	"manifest_blob_path", "release_method", "original_label",
	"original_deployment", "released_by", "upload_time", "deleted_at",
}

func TestCommitPackageRejectsDuplicateHash(t *testing.T) {
	e, mock := newTestEngine(t)

	zip := []byte("bundle-bytes")
	dummyPkg := store.Package{
		ID: "prior", DeploymentID: "dep-1", Label: "v1", AppVersion: "1.0.0",
		Rollout: sql.NullInt32{}, ReleaseMethod: store.ReleaseMethodUpload,
		UploadTime: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).
		WillReturnRows(packageRows(dummyPkgWithHash(dummyPkg, zip)))
	mock.ExpectRollback()

	_, err := e.CommitPackage(context.Background(), "app-1", store.Deployment{ID: "dep-1", Name: "Staging"}, CommitInput{
		AppVersion: "1.0.0", ZipBytes: zip,
	})
	require.Error(t, err)
	assert.Equal(t, apierrors.AlreadyExists, apierrors.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitPackageRejectsUnfinishedRollout(t *testing.T) {
	e, mock := newTestEngine(t)

	prior := store.Package{
		ID: "prior", DeploymentID: "dep-1", Label: "v1", AppVersion: "1.0.0",
		Rollout: sql.NullInt32{Int32: 50, Valid: true}, IsDisabled: false,
		PackageHash: "different-hash", ReleaseMethod: store.ReleaseMethodUpload, UploadTime: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).WillReturnRows(packageRows(prior))
	mock.ExpectRollback()

	_, err := e.CommitPackage(context.Background(), "app-1", store.Deployment{ID: "dep-1", Name: "Staging"}, CommitInput{
		AppVersion: "1.0.0", ZipBytes: []byte("new-bundle"),
	})
	require.Error(t, err)
	assert.Equal(t, apierrors.Conflict, apierrors.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitPackageHappyPath(t *testing.T) {
	e, mock := newTestEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).
		WillReturnRows(sqlmock.NewRows(packageColumnNames)) // no prior release
	mock.ExpectQuery(`SELECT count\(\*\) FROM packages WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO packages`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).
		WillReturnRows(sqlmock.NewRows(packageColumnNames)) // history for diff candidates
	mock.ExpectCommit()

	pkg, err := e.CommitPackage(context.Background(), "app-1", store.Deployment{ID: "dep-1", Name: "Staging"}, CommitInput{
		AppVersion: "1.0.0", ZipBytes: []byte("new-bundle"), ReleasedBy: "acct-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "v1", pkg.Label)
	assert.NotEmpty(t, pkg.PackageHash)

	gotZip, err := e.Blob.GetBytes(context.Background(), pkg.BlobPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("new-bundle"), gotZip)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackRejectsAcrossBinaryVersions(t *testing.T) {
	e, mock := newTestEngine(t)

	older := store.Package{ID: "p1", DeploymentID: "dep-1", Label: "v1", AppVersion: "1.0.0", ReleaseMethod: store.ReleaseMethodUpload, UploadTime: time.Now()}
	newer := store.Package{ID: "p2", DeploymentID: "dep-1", Label: "v2", AppVersion: "2.0.0", ReleaseMethod: store.ReleaseMethodUpload, UploadTime: time.Now().Add(time.Minute)}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).WillReturnRows(packageRows(older, newer))
	mock.ExpectRollback()

	_, err := e.Rollback(context.Background(), store.Deployment{ID: "dep-1", Name: "Staging"}, "", "acct-1")
	require.Error(t, err)
	assert.Equal(t, apierrors.Conflict, apierrors.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackRequiresPriorRelease(t *testing.T) {
	e, mock := newTestEngine(t)

	only := store.Package{ID: "p1", DeploymentID: "dep-1", Label: "v1", AppVersion: "1.0.0", ReleaseMethod: store.ReleaseMethodUpload, UploadTime: time.Now()}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).WillReturnRows(packageRows(only))
	mock.ExpectRollback()

	_, err := e.Rollback(context.Background(), store.Deployment{ID: "dep-1", Name: "Staging"}, "", "acct-1")
	require.Error(t, err)
	assert.Equal(t, apierrors.Conflict, apierrors.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPromoteHappyPath(t *testing.T) {
	e, mock := newTestEngine(t)

	src := store.Package{
		ID: "p1", DeploymentID: "src-1", Label: "v3", AppVersion: "1.0.0",
		Description: "fix crash", PackageHash: "hash-1", BlobPath: "apps/app-1/deployments/src-1/p1.zip",
		ManifestBlobPath: sql.NullString{String: "apps/app-1/deployments/src-1/p1-manifest.json", Valid: true},
		ReleaseMethod:    store.ReleaseMethodUpload, UploadTime: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).WillReturnRows(packageRows(src)) // src latest
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).
		WillReturnRows(sqlmock.NewRows(packageColumnNames)) // dst latest: none
	mock.ExpectQuery(`SELECT count\(\*\) FROM packages WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO packages`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	dst := store.Deployment{ID: "dst-1", Name: "Production"}
	pkg, err := e.Promote(context.Background(), store.Deployment{ID: "src-1", Name: "Staging"}, dst, PromoteOverrides{}, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "v1", pkg.Label)
	assert.Equal(t, "dst-1", pkg.DeploymentID)
	assert.Equal(t, src.AppVersion, pkg.AppVersion)
	assert.Equal(t, src.Description, pkg.Description)
	assert.Equal(t, src.PackageHash, pkg.PackageHash)
	assert.Equal(t, src.BlobPath, pkg.BlobPath)
	assert.Equal(t, store.ReleaseMethodPromote, pkg.ReleaseMethod)
	assert.Equal(t, "v3", pkg.OriginalLabel.String)
	assert.Equal(t, "Staging", pkg.OriginalDeployment.String)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPromoteAppliesOverrides(t *testing.T) {
	e, mock := newTestEngine(t)

	src := store.Package{
		ID: "p1", DeploymentID: "src-1", Label: "v1", AppVersion: "1.0.0",
		Description: "original description", PackageHash: "hash-1",
		BlobPath: "apps/app-1/deployments/src-1/p1.zip", IsDisabled: false, IsMandatory: false,
		ReleaseMethod: store.ReleaseMethodUpload, UploadTime: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).WillReturnRows(packageRows(src))
	mock.ExpectQuery(`SELECT (.+) FROM packages WHERE`).
		WillReturnRows(sqlmock.NewRows(packageColumnNames))
	mock.ExpectQuery(`SELECT count\(\*\) FROM packages WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec(`INSERT INTO packages`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	overrideDesc := "promoted with a note"
	overrideRollout := int32(25)
	overrides := PromoteOverrides{
		IsDisabled:  boolPtr(true),
		IsMandatory: boolPtr(true),
		Description: &overrideDesc,
		Rollout:     &overrideRollout,
	}

	dst := store.Deployment{ID: "dst-1", Name: "Production"}
	pkg, err := e.Promote(context.Background(), store.Deployment{ID: "src-1", Name: "Staging"}, dst, overrides, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "v3", pkg.Label)
	assert.True(t, pkg.IsDisabled)
	assert.True(t, pkg.IsMandatory)
	assert.Equal(t, overrideDesc, pkg.Description)
	require.True(t, pkg.Rollout.Valid)
	assert.Equal(t, overrideRollout, pkg.Rollout.Int32)
	require.NoError(t, mock.ExpectationsWereMet())
}

func boolPtr(b bool) *bool { return &b }

func dummyPkgWithHash(p store.Package, zip []byte) store.Package {
	m, _ := manifest.Generate(zip)
	p.PackageHash = manifest.PackageHash(m)
	return p
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
