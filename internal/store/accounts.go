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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
)

// GetAccountByID returns an account by id, excluding soft-deleted rows.
func (s *Store) GetAccountByID(ctx context.Context, id string) (*Account, error) {
	return getAccount(ctx, s.db, "id", id)
}

// GetAccountByEmail looks up an account by case-folded email.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return getAccount(ctx, s.db, "email", strings.ToLower(email))
}

func getAccount(ctx context.Context, q sqlx.QueryerContext, column, value string) (*Account, error) {
	query, args, err := psql.Select("id", "email", "name", "linked_providers", "created_time", "deleted_at").
		From("accounts").
		Where("deleted_at IS NULL").
		Where(column+" = ?", value).
		ToSql()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "store: build account query")
	}

	var acct Account
	if err := sqlx.GetContext(ctx, q, &acct, query, args...); err != nil {
		if isNoRows(err) {
			return nil, apierrors.New(apierrors.NotFound, "store: account not found")
		}
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "store: get account")
	}
	return &acct, nil
}

// CreateAccount inserts a new account, provisioned by the external auth
// collaborator on first sign-in.
func (s *Store) CreateAccount(ctx context.Context, acct Account) error {
	query, args, err := psql.Insert("accounts").
		Columns("id", "email", "name", "linked_providers", "created_time").
		Values(acct.ID, strings.ToLower(acct.Email), acct.Name, acct.LinkedProviders, acct.CreatedTime).
		ToSql()
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "store: build create account")
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apierrors.New(apierrors.AlreadyExists, "store: account %q already exists", acct.Email)
		}
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: create account")
	}
	return nil
}

// UpsertAccountByEmail returns the id of the account with the given email,
// provisioning a placeholder account (no name, no linked providers) if
// none exists yet. Used by transferApp and addCollaborator, which both
// accept a target by email rather than by account id.
func (s *Store) UpsertAccountByEmail(ctx context.Context, email string) (string, error) {
	if acct, err := s.GetAccountByEmail(ctx, email); err == nil {
		return acct.ID, nil
	} else if apierrors.KindOf(err) != apierrors.NotFound {
		return "", err
	}

	acct := Account{ID: uuid.New().String(), Email: email, CreatedTime: time.Now()}
	if err := s.CreateAccount(ctx, acct); err != nil {
		if apierrors.KindOf(err) == apierrors.AlreadyExists {
			existing, getErr := s.GetAccountByEmail(ctx, email)
			if getErr != nil {
				return "", getErr
			}
			return existing.ID, nil
		}
		return "", err
	}
	return acct.ID, nil
}

// AddLinkedProvider appends provider to acct's linked-providers list if not
// already present.
func (s *Store) AddLinkedProvider(ctx context.Context, accountID, provider string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET linked_providers = array_append(linked_providers, $1)
		 WHERE id = $2 AND deleted_at IS NULL AND NOT ($1 = ANY(linked_providers))`,
		provider, accountID)
	if err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: add linked provider")
	}
	return nil
}
