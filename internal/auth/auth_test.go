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

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

func newTestIdentity(t *testing.T) (*BearerAccessKey, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBearerAccessKey(store.New(sqlx.NewDb(db, "postgres"))), mock
}

func TestResolveRejectsMissingHeader(t *testing.T) {
	id, _ := newTestIdentity(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, err := id.Resolve(req.Context(), req)
	require.Error(t, err)
	assert.Equal(t, apierrors.Unauthorized, apierrors.KindOf(err))
}

func TestResolveStripsBearerPrefix(t *testing.T) {
	id, mock := newTestIdentity(t)
	mock.ExpectQuery(`SELECT (.+) FROM access_keys WHERE`).
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "expires"}).
			AddRow("acct-1", time.Now().Add(time.Hour)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc123")

	accountID, err := id.Resolve(req.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)
}

func TestResolveAcceptsBareHeaderValue(t *testing.T) {
	id, mock := newTestIdentity(t)
	mock.ExpectQuery(`SELECT (.+) FROM access_keys WHERE`).
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "expires"}).
			AddRow("acct-1", time.Now().Add(time.Hour)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "abc123")

	accountID, err := id.Resolve(req.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)
}
