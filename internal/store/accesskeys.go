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
	"time"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
)

var accessKeyColumns = []string{
	"id", "account_id", "name", "friendly_name", "created_by",
	"created_time", "expires", "is_session", "deleted_at",
}

// ListAccessKeys returns every non-deleted key belonging to accountID,
// ordered by creation time. Callers must mask Name before returning these
// to a client (AccessKey.Masked).
func (s *Store) ListAccessKeys(ctx context.Context, accountID string) ([]AccessKey, error) {
	query, args, err := psql.Select(accessKeyColumns...).
		From("access_keys").
		Where("account_id = ? AND deleted_at IS NULL", accountID).
		OrderBy("created_time ASC").
		ToSql()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "store: build list access keys")
	}
	var keys []AccessKey
	if err := s.db.SelectContext(ctx, &keys, query, args...); err != nil {
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "store: list access keys")
	}
	return keys, nil
}

// CreateAccessKey inserts a new key. FriendlyName must be unique per
// account.
func (s *Store) CreateAccessKey(ctx context.Context, k AccessKey) error {
	query, args, err := psql.Insert("access_keys").
		Columns(accessKeyColumns...).
		Values(k.ID, k.AccountID, k.Name, k.FriendlyName, k.CreatedBy, k.CreatedTime, k.Expires, k.IsSession, k.DeletedAt).
		ToSql()
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "store: build create access key")
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apierrors.New(apierrors.AlreadyExists, "store: access key %q already exists", k.FriendlyName)
		}
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: create access key")
	}
	return nil
}

// UpdateAccessKey patches friendlyName and/or expires for the key
// identified by id belonging to accountID.
func (s *Store) UpdateAccessKey(ctx context.Context, accountID, id string, friendlyName *string, expires *time.Time) error {
	builder := psql.Update("access_keys").Where("id = ? AND account_id = ? AND deleted_at IS NULL", id, accountID)
	if friendlyName != nil {
		builder = builder.Set("friendly_name", *friendlyName)
	}
	if expires != nil {
		builder = builder.Set("expires", *expires)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "store: build update access key")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return apierrors.New(apierrors.AlreadyExists, "store: access key name already in use")
		}
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: update access key")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierrors.New(apierrors.NotFound, "store: access key %q not found", id)
	}
	return nil
}

// RemoveAccessKey soft-deletes the key.
func (s *Store) RemoveAccessKey(ctx context.Context, accountID, id string) error {
	query, args, err := psql.Update("access_keys").
		Set("deleted_at", timeNow()).
		Where("id = ? AND account_id = ? AND deleted_at IS NULL", id, accountID).
		ToSql()
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "store: build remove access key")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: remove access key")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierrors.New(apierrors.NotFound, "store: access key %q not found", id)
	}
	return nil
}

// GetAccountIDFromAccessKey resolves a bearer token to an account id,
// rejecting keys that are soft-deleted or past their expiry.
func (s *Store) GetAccountIDFromAccessKey(ctx context.Context, token string) (string, error) {
	query, args, err := psql.Select("account_id", "expires").
		From("access_keys").
		Where("name = ? AND deleted_at IS NULL", token).
		ToSql()
	if err != nil {
		return "", apierrors.Wrap(apierrors.Internal, err, "store: build resolve access key")
	}

	var row struct {
		AccountID string    `db:"account_id"`
		Expires   time.Time `db:"expires"`
	}
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNoRows(err) {
			return "", apierrors.New(apierrors.NotFound, "store: access key not recognized")
		}
		return "", apierrors.Wrap(apierrors.ConnectionFailed, err, "store: resolve access key")
	}
	if timeNow().After(row.Expires) {
		return "", apierrors.New(apierrors.Expired, "store: access key expired")
	}
	return row.AccountID, nil
}

// timeNow is a seam for deterministic tests; production code leaves it at
// the default.
var timeNow = time.Now
