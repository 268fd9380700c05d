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

// Package codepush holds the key/hash utilities shared across the
// release engine, resolver and access-control components: opaque id
// generation, semver normalization and the stable rollout predicate.
package codepush

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const keyRandomBytes = 16 // 16 bytes -> 32 hex characters

// GenerateKey returns prefix followed by 32 hex characters drawn from a
// cryptographically secure RNG. It is the base used by
// GenerateDeploymentKey, GenerateAccessKey and internal id generation.
func GenerateKey(prefix string) (string, error) {
	buf := make([]byte, keyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("codepush: generating random key: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}

// MustGenerateKey panics on RNG failure. Safe at startup; avoid at request time.
func MustGenerateKey(prefix string) string {
	k, err := GenerateKey(prefix)
	if err != nil {
		panic(err)
	}
	return k
}

// GenerateDeploymentKey returns a fresh public deployment key ("dk_" + 32 hex).
func GenerateDeploymentKey() (string, error) { return GenerateKey("dk_") }

// GenerateAccessKey returns a fresh access-key token ("ck_" + 32 hex).
func GenerateAccessKey() (string, error) { return GenerateKey("ck_") }

// GenerateID returns an opaque id ("id_" + 32 hex).
func GenerateID() (string, error) { return GenerateKey("id_") }
