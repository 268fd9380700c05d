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

package blob

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/log"
	"github.com/yplabs-ltd/codepush-server/internal/objectstore/memstore"
)

func newTestService() *Service {
	return New(memstore.New("https://blobs.test/"), log.NopLogger{})
}

func TestAddBlobThenGetURL(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	body := []byte("payload")
	key, err := svc.AddBlob(ctx, "deployment-1", bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	assert.Contains(t, key, "deployment-1/")

	url1, err := svc.GetBlobURL(ctx, key)
	require.NoError(t, err)
	assert.NotEmpty(t, url1)

	url2, err := svc.GetBlobURL(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, url1, url2, "second call within cache TTL should reuse the same signed URL")
}

func TestMoveBlobCopiesAndRemovesSource(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	body := []byte("move me")
	src, err := svc.AddBlob(ctx, "app", bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)

	dst := src + "-moved"
	require.NoError(t, svc.MoveBlob(ctx, src, dst))

	_, err = svc.store.Get(ctx, src)
	assert.Equal(t, apierrors.NotFound, apierrors.KindOf(err))

	rc, err := svc.store.Get(ctx, dst)
	require.NoError(t, err)
	defer rc.Close()
}

func TestRemoveBlobInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	body := []byte("gone soon")
	key, err := svc.AddBlob(ctx, "app", bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)

	_, err = svc.GetBlobURL(ctx, key)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveBlob(ctx, key))
	_, err = svc.store.Get(ctx, key)
	assert.Equal(t, apierrors.NotFound, apierrors.KindOf(err))

	svc.mu.Lock()
	_, cached := svc.cache[key]
	svc.mu.Unlock()
	assert.False(t, cached, "RemoveBlob should drop the cached signed URL")
}

func TestDeletePathRemovesEverythingUnderPrefix(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	body := []byte("x")
	_, err := svc.AddBlob(ctx, "deployment-7", bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	_, err = svc.AddBlob(ctx, "deployment-7", bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	_, err = svc.AddBlob(ctx, "deployment-8", bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)

	require.NoError(t, svc.DeletePath(ctx, "deployment-7/"))

	keys, err := svc.store.List(ctx, "deployment-7/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = svc.store.List(ctx, "deployment-8/")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
