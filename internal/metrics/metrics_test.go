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

package metrics

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/yplabs-ltd/codepush-server/internal/store"
)

func newTestReporter(t *testing.T) (*Reporter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(store.New(sqlx.NewDb(db, "postgres"))), mock
}

func TestRecordDownloadIncrementsCounter(t *testing.T) {
	r, mock := newTestReporter(t)
	mock.ExpectExec(`INSERT INTO metrics`).
		WithArgs("dk_1", "v3", store.MetricDownloaded, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.RecordDownload(context.Background(), "dk_1", "v3"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDeploymentStatusSucceededUpdatesActiveAndLabel(t *testing.T) {
	r, mock := newTestReporter(t)
	mock.ExpectExec(`INSERT INTO metrics`).
		WithArgs("dk_1", "v3", store.MetricDeploymentSucceeded, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO metrics`).
		WithArgs("dk_1", "v3", store.MetricActive, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO client_labels`).
		WithArgs("client-1", "dk_1", "v3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.RecordDeploymentStatus(context.Background(), "dk_1", "v3", StatusSucceeded, "client-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDeploymentStatusFailedOnlyIncrementsFailure(t *testing.T) {
	r, mock := newTestReporter(t)
	mock.ExpectExec(`INSERT INTO metrics`).
		WithArgs("dk_1", "v3", store.MetricDeploymentFailed, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.RecordDeploymentStatus(context.Background(), "dk_1", "v3", StatusFailed, "client-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDeploymentMovesActiveCountBetweenLabels(t *testing.T) {
	r, mock := newTestReporter(t)
	mock.ExpectExec(`INSERT INTO metrics`).
		WithArgs("dk_1", "v2", store.MetricActive, int64(-1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO metrics`).
		WithArgs("dk_1", "v3", store.MetricActive, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO client_labels`).
		WithArgs("client-1", "dk_1", "v3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.RecordDeployment(context.Background(), "dk_1", "v3", "client-1", "v2")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
