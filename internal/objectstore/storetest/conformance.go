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

// Package storetest is a shared conformance suite run against every
// objectstore.Store implementation, the same way the pack's reference
// repos share one crud/range testsuite across storage backends.
package storetest

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/objectstore"
)

// Run exercises the full objectstore.Store contract against store.
func Run(t *testing.T, store objectstore.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		body := []byte("hello world")
		require.NoError(t, store.Put(ctx, "a/b.txt", bytes.NewReader(body), int64(len(body)), map[string]string{"size": "11"}))

		rc, err := store.Get(ctx, "a/b.txt")
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, body, got)
	})

	t.Run("HeadReturnsMetadata", func(t *testing.T) {
		body := []byte("head me")
		require.NoError(t, store.Put(ctx, "head/key", bytes.NewReader(body), int64(len(body)), map[string]string{"k": "v"}))

		meta, err := store.Head(ctx, "head/key")
		require.NoError(t, err)
		assert.Equal(t, int64(len(body)), meta.Size)
	})

	t.Run("GetMissingIsNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "does/not/exist")
		require.Error(t, err)
		assert.Equal(t, apierrors.NotFound, apierrors.KindOf(err))
	})

	t.Run("HeadMissingIsNotFound", func(t *testing.T) {
		_, err := store.Head(ctx, "does/not/exist")
		require.Error(t, err)
		assert.Equal(t, apierrors.NotFound, apierrors.KindOf(err))
	})

	t.Run("ListByPrefix", func(t *testing.T) {
		body := []byte("x")
		require.NoError(t, store.Put(ctx, "list/one", bytes.NewReader(body), 1, nil))
		require.NoError(t, store.Put(ctx, "list/two", bytes.NewReader(body), 1, nil))
		require.NoError(t, store.Put(ctx, "other/three", bytes.NewReader(body), 1, nil))

		keys, err := store.List(ctx, "list/")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"list/one", "list/two"}, keys)
	})

	t.Run("DeleteRemovesKeys", func(t *testing.T) {
		body := []byte("bye")
		require.NoError(t, store.Put(ctx, "del/key", bytes.NewReader(body), int64(len(body)), nil))
		require.NoError(t, store.Delete(ctx, "del/key"))

		_, err := store.Get(ctx, "del/key")
		require.Error(t, err)
		assert.Equal(t, apierrors.NotFound, apierrors.KindOf(err))
	})

	t.Run("DeleteMissingKeyIsNotAnError", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "never/existed"))
	})

	t.Run("SignURLProducesAURL", func(t *testing.T) {
		body := []byte("signed")
		require.NoError(t, store.Put(ctx, "sign/key", bytes.NewReader(body), int64(len(body)), nil))

		url, err := store.SignURL(ctx, "sign/key", time.Hour)
		require.NoError(t, err)
		assert.NotEmpty(t, url)
	})

	t.Run("SignURLMissingIsNotFound", func(t *testing.T) {
		_, err := store.SignURL(ctx, "missing/key", time.Hour)
		require.Error(t, err)
		assert.Equal(t, apierrors.NotFound, apierrors.KindOf(err))
	})
}
