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

// Package access enforces who may act on an app: resolving a bearer token
// to an account, and checking an account's collaborator permission before
// a mutating app/deployment operation proceeds.
package access

import (
	"context"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

// Guard resolves bearer tokens and checks collaborator permissions.
type Guard struct {
	Store *store.Store
}

// New builds a Guard.
func New(s *store.Store) *Guard {
	return &Guard{Store: s}
}

// Authenticate resolves a bearer token to the account it belongs to,
// rejecting expired or unknown keys.
func (g *Guard) Authenticate(ctx context.Context, token string) (string, error) {
	return g.Store.GetAccountIDFromAccessKey(ctx, token)
}

// RequirePermission loads accountID's collaborator row on appID and
// returns it, failing with Forbidden if accountID is not a collaborator
// at all, or with Forbidden if need is Owner and the account only holds
// Collaborator.
func (g *Guard) RequirePermission(ctx context.Context, appID, accountID string, need store.Permission) (*store.Collaborator, error) {
	collaborators, err := g.Store.ListCollaborators(ctx, appID)
	if err != nil {
		return nil, err
	}
	for _, c := range collaborators {
		if c.AccountID != accountID {
			continue
		}
		if need == store.PermissionOwner && c.Permission != store.PermissionOwner {
			return nil, apierrors.New(apierrors.Forbidden, "access: account is a collaborator, not the owner of this app")
		}
		row := c
		return &row, nil
	}
	return nil, apierrors.New(apierrors.Forbidden, "access: account has no access to this app")
}

// CanRemoveCollaborator enforces the rule that an Owner may only be
// removed from an app by removing themselves (i.e. leaving the app),
// never by another collaborator, and an app must always retain an owner.
func CanRemoveCollaborator(target store.Collaborator, requestingAccountID string) error {
	if target.Permission == store.PermissionOwner && target.AccountID != requestingAccountID {
		return apierrors.New(apierrors.Forbidden, "access: only the owner can remove themselves; transfer ownership first")
	}
	return nil
}

// MaskAccessKeys returns a copy of keys with every Name replaced by the
// hidden-secret placeholder, safe to render in a listing response.
func MaskAccessKeys(keys []store.AccessKey) []store.AccessKey {
	masked := make([]store.AccessKey, len(keys))
	for i, k := range keys {
		masked[i] = k.Masked()
	}
	return masked
}
