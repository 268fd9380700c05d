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

// Package blob wraps an objectstore.Store with the higher-level operations
// the release engine needs: content upload under a stable key, cached
// signed read URLs, and copy/delete helpers for promotion and cleanup.
package blob

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/log"
	"github.com/yplabs-ltd/codepush-server/internal/objectstore"
)

// SignedURLTTL is how long a signed read URL remains valid once issued.
const SignedURLTTL = time.Hour

// urlCacheTTL is how long a cached signed URL is reused before recomputing.
// Kept shorter than SignedURLTTL so clients never receive a URL close to
// expiry.
const urlCacheTTL = 30 * time.Minute

const deleteBatchSize = 1000

// Service is the blob-handling façade used by the release engine.
type Service struct {
	store objectstore.Store
	log   log.Logger

	mu    sync.Mutex
	cache map[string]cachedURL
}

type cachedURL struct {
	url       string
	expiresAt time.Time
}

// New builds a Service backed by store.
func New(store objectstore.Store, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NopLogger{}
	}
	return &Service{
		store: store,
		log:   logger,
		cache: make(map[string]cachedURL),
	}
}

// AddBlob stores r under a freshly generated key namespaced by id and
// returns that key.
func (s *Service) AddBlob(ctx context.Context, id string, r io.Reader, size int64) (string, error) {
	key := fmt.Sprintf("%s/%s", id, uuid.New().String())
	if err := s.store.Put(ctx, key, r, size, nil); err != nil {
		return "", apierrors.Wrap(apierrors.KindOf(err), err, "blob: add blob for %q", id)
	}
	s.log.Debug("blob added", "id", id, "key", key, "size", size)
	return key, nil
}

// PutAt stores r under a caller-chosen key, used by the release engine to
// write bundles and manifests at their canonical deployment-scoped paths
// rather than a randomly generated one.
func (s *Service) PutAt(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	if err := s.store.Put(ctx, key, r, size, metadata); err != nil {
		return apierrors.Wrap(apierrors.KindOf(err), err, "blob: put %q", key)
	}
	s.invalidate(key)
	return nil
}

// GetBytes reads the full contents of key, used by the diff worker to load
// a prior release's manifest.
func (s *Service) GetBytes(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindOf(err), err, "blob: read %q", key)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "blob: read body of %q", key)
	}
	return b, nil
}

// GetBlobURL returns a signed read URL for key, reusing a cached URL when
// one was issued within urlCacheTTL.
func (s *Service) GetBlobURL(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	if entry, ok := s.cache[key]; ok && time.Now().Before(entry.expiresAt) {
		s.mu.Unlock()
		return entry.url, nil
	}
	s.mu.Unlock()

	url, err := s.store.SignURL(ctx, key, SignedURLTTL)
	if err != nil {
		return "", apierrors.Wrap(apierrors.KindOf(err), err, "blob: sign url for %q", key)
	}

	s.mu.Lock()
	s.cache[key] = cachedURL{url: url, expiresAt: time.Now().Add(urlCacheTTL)}
	s.mu.Unlock()
	return url, nil
}

// MoveBlob copies src to dst and best-effort removes src, retrying the
// delete a bounded number of times. Failure to clean up src is logged but
// does not fail the move: the copy already succeeded and callers have
// already committed dst.
func (s *Service) MoveBlob(ctx context.Context, src, dst string) error {
	rc, err := s.store.Get(ctx, src)
	if err != nil {
		return apierrors.Wrap(apierrors.KindOf(err), err, "blob: read %q for move", src)
	}
	defer rc.Close()

	meta, err := s.store.Head(ctx, src)
	if err != nil {
		return apierrors.Wrap(apierrors.KindOf(err), err, "blob: head %q for move", src)
	}

	if err := s.store.Put(ctx, dst, rc, meta.Size, meta.Meta); err != nil {
		return apierrors.Wrap(apierrors.KindOf(err), err, "blob: write %q for move", dst)
	}

	s.invalidate(dst)

	const maxRetries = 3
	var deleteErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if deleteErr = s.store.Delete(ctx, src); deleteErr == nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	if deleteErr != nil {
		s.log.Warn("blob: failed to remove source after move", "src", src, "dst", dst, "error", deleteErr)
	}
	return nil
}

// RemoveBlob deletes a single key.
func (s *Service) RemoveBlob(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		return apierrors.Wrap(apierrors.KindOf(err), err, "blob: remove %q", key)
	}
	s.invalidate(key)
	return nil
}

// DeletePath removes every object under prefix, in batches of up to
// deleteBatchSize keys per underlying Delete call.
func (s *Service) DeletePath(ctx context.Context, prefix string) error {
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return apierrors.Wrap(apierrors.KindOf(err), err, "blob: list %q for delete", prefix)
	}
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		if err := s.store.Delete(ctx, batch...); err != nil {
			return apierrors.Wrap(apierrors.KindOf(err), err, "blob: delete batch under %q", prefix)
		}
		for _, k := range batch {
			s.invalidate(k)
		}
	}
	return nil
}

func (s *Service) invalidate(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
}
