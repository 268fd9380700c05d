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

package access

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

func newTestGuard(t *testing.T) (*Guard, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(store.New(sqlx.NewDb(db, "postgres"))), mock
}

func TestRequirePermissionRejectsNonCollaborator(t *testing.T) {
	g, mock := newTestGuard(t)
	mock.ExpectQuery(`SELECT (.+) FROM collaborators WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"app_id", "account_id", "permission"}))

	_, err := g.RequirePermission(context.Background(), "app-1", "acct-1", store.PermissionCollaborator)
	require.Error(t, err)
	assert.Equal(t, apierrors.Forbidden, apierrors.KindOf(err))
}

func TestRequirePermissionRejectsCollaboratorWhenOwnerNeeded(t *testing.T) {
	g, mock := newTestGuard(t)
	mock.ExpectQuery(`SELECT (.+) FROM collaborators WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"app_id", "account_id", "permission"}).
			AddRow("app-1", "acct-1", store.PermissionCollaborator))

	_, err := g.RequirePermission(context.Background(), "app-1", "acct-1", store.PermissionOwner)
	require.Error(t, err)
	assert.Equal(t, apierrors.Forbidden, apierrors.KindOf(err))
}

func TestRequirePermissionAllowsOwner(t *testing.T) {
	g, mock := newTestGuard(t)
	mock.ExpectQuery(`SELECT (.+) FROM collaborators WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"app_id", "account_id", "permission"}).
			AddRow("app-1", "acct-1", store.PermissionOwner))

	c, err := g.RequirePermission(context.Background(), "app-1", "acct-1", store.PermissionCollaborator)
	require.NoError(t, err)
	assert.Equal(t, store.PermissionOwner, c.Permission)
}

func TestCanRemoveCollaboratorRejectsRemovingOtherOwner(t *testing.T) {
	err := CanRemoveCollaborator(store.Collaborator{AccountID: "owner-1", Permission: store.PermissionOwner}, "acct-2")
	require.Error(t, err)
	assert.Equal(t, apierrors.Forbidden, apierrors.KindOf(err))
}

func TestCanRemoveCollaboratorAllowsSelfRemoval(t *testing.T) {
	err := CanRemoveCollaborator(store.Collaborator{AccountID: "owner-1", Permission: store.PermissionOwner}, "owner-1")
	require.NoError(t, err)
}

func TestMaskAccessKeysHidesName(t *testing.T) {
	keys := []store.AccessKey{{Name: "secret-token", FriendlyName: "CLI login", Expires: time.Now().Add(time.Hour)}}
	masked := MaskAccessKeys(keys)
	assert.Equal(t, "(hidden)", masked[0].Name)
	assert.Equal(t, "CLI login", masked[0].FriendlyName)
}
