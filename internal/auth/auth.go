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

// Package auth defines the boundary between the core and whatever proves a
// caller's identity. The core never performs an OAuth handshake itself: it
// asks an Identity for the account behind a request and moves on.
package auth

import (
	"context"
	"net/http"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

// Identity resolves an inbound request to the accountID making it.
// Implementations might check a bearer access key, a session cookie set by
// an external OAuth front door, or (in tests) a static value.
type Identity interface {
	Resolve(ctx context.Context, r *http.Request) (accountID string, err error)
}

// BearerAccessKey is the one Identity implementation the core ships: it
// reads the legacy `Authorization: Bearer <key>` header (accepted
// alongside a bare header value for the CodePush CLI's older clients) and
// resolves it against the access_keys table.
type BearerAccessKey struct {
	Store *store.Store
}

// NewBearerAccessKey builds a BearerAccessKey identity resolver.
func NewBearerAccessKey(s *store.Store) *BearerAccessKey {
	return &BearerAccessKey{Store: s}
}

const bearerPrefix = "Bearer "

func (b *BearerAccessKey) Resolve(ctx context.Context, r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token := header
	if len(header) > len(bearerPrefix) && header[:len(bearerPrefix)] == bearerPrefix {
		token = header[len(bearerPrefix):]
	}
	if token == "" {
		return "", apierrors.New(apierrors.Unauthorized, "auth: missing access key")
	}
	return b.Store.GetAccountIDFromAccessKey(ctx, token)
}
