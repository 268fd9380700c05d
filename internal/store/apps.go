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

// ListApps returns every non-deleted app an account collaborates on.
func (s *Store) ListApps(ctx context.Context, accountID string) ([]App, error) {
	query, args, err := psql.Select("a.id", "a.account_id", "a.name", "a.created_time", "a.deleted_at").
		From("apps a").
		Join("collaborators c ON c.app_id = a.id").
		Where("c.account_id = ? AND a.deleted_at IS NULL", accountID).
		OrderBy("a.created_time ASC").
		ToSql()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "store: build list apps")
	}
	var apps []App
	if err := s.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "store: list apps")
	}
	return apps, nil
}

// GetApp looks up a non-deleted app by owning account and name.
func (s *Store) GetApp(ctx context.Context, accountID, name string) (*App, error) {
	query, args, err := psql.Select("id", "account_id", "name", "created_time", "deleted_at").
		From("apps").
		Where("account_id = ? AND name = ? AND deleted_at IS NULL", accountID, name).
		ToSql()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "store: build get app")
	}
	var app App
	if err := s.db.GetContext(ctx, &app, query, args...); err != nil {
		if isNoRows(err) {
			return nil, apierrors.New(apierrors.NotFound, "store: app %q not found", name)
		}
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "store: get app")
	}
	return &app, nil
}

// ListCollaborators returns every collaborator row for an app.
func (s *Store) ListCollaborators(ctx context.Context, appID string) ([]Collaborator, error) {
	query, args, err := psql.Select("app_id", "account_id", "permission").
		From("collaborators").
		Where("app_id = ?", appID).
		ToSql()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "store: build list collaborators")
	}
	var rows []Collaborator
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "store: list collaborators")
	}
	return rows, nil
}

// AddApp creates app and a single Owner collaborator row in one
// transaction, so an app is never left without an owner.
func (s *Store) AddApp(ctx context.Context, accountID string, app App) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := psql.Insert("apps").
			Columns("id", "account_id", "name", "created_time").
			Values(app.ID, accountID, app.Name, app.CreatedTime).
			ToSql()
		if err != nil {
			return apierrors.Wrap(apierrors.Internal, err, "store: build add app")
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isUniqueViolation(err) {
				return apierrors.New(apierrors.AlreadyExists, "store: app %q already exists", app.Name)
			}
			return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: add app")
		}

		return insertCollaborator(ctx, tx, app.ID, accountID, PermissionOwner)
	})
}

func insertCollaborator(ctx context.Context, tx *sqlx.Tx, appID, accountID string, perm Permission) error {
	query, args, err := psql.Insert("collaborators").
		Columns("app_id", "account_id", "permission").
		Values(appID, accountID, perm).
		ToSql()
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "store: build insert collaborator")
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: insert collaborator")
	}
	return nil
}

// RemoveApp soft-deletes an app.
func (s *Store) RemoveApp(ctx context.Context, appID string) error {
	query, args, err := psql.Update("apps").
		Set("deleted_at", timeNow()).
		Where("id = ? AND deleted_at IS NULL", appID).
		ToSql()
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "store: build remove app")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: remove app")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierrors.New(apierrors.NotFound, "store: app %q not found", appID)
	}
	return nil
}

// TransferApp demotes the current Owner to Collaborator and promotes (or
// inserts) targetAccountID as the new Owner, within one transaction,
// preserving the invariant that exactly one Owner exists at all times.
func (s *Store) TransferApp(ctx context.Context, appID, targetAccountID string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		demoteQuery, demoteArgs, err := psql.Update("collaborators").
			Set("permission", PermissionCollaborator).
			Where("app_id = ? AND permission = ?", appID, PermissionOwner).
			ToSql()
		if err != nil {
			return apierrors.Wrap(apierrors.Internal, err, "store: build demote owner")
		}
		if _, err := tx.ExecContext(ctx, demoteQuery, demoteArgs...); err != nil {
			return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: demote owner")
		}

		upsertQuery := `
			INSERT INTO collaborators (app_id, account_id, permission)
			VALUES ($1, $2, $3)
			ON CONFLICT (app_id, account_id) DO UPDATE SET permission = EXCLUDED.permission`
		if _, err := tx.ExecContext(ctx, upsertQuery, appID, targetAccountID, PermissionOwner); err != nil {
			return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: upsert new owner")
		}
		return nil
	})
}

// AddCollaborator inserts a Collaborator-permission row for accountID on
// appID, run in its own transaction.
func (s *Store) AddCollaborator(ctx context.Context, appID, accountID string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return insertCollaborator(ctx, tx, appID, accountID, PermissionCollaborator)
	})
}

// RemoveCollaborator removes a single collaborator row. Callers enforce
// the "cannot remove the Owner unless self-removing" rule before
// calling this.
func (s *Store) RemoveCollaborator(ctx context.Context, appID, accountID string) error {
	query, args, err := psql.Delete("collaborators").
		Where("app_id = ? AND account_id = ?", appID, accountID).
		ToSql()
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "store: build remove collaborator")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: remove collaborator")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierrors.New(apierrors.NotFound, "store: collaborator not found")
	}
	return nil
}
