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

// Package memstore is an in-memory objectstore.Store, the object-store
// in-memory object store for tests: no
// external dependency, safe for concurrent use, used by tests and local
// development.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/objectstore"
)

type object struct {
	bytes []byte
	meta  map[string]string
}

// Store is an in-memory objectstore.Store.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object

	// urlPrefix lets tests assert on the shape of signed URLs without a
	// real signer; production code should use a real backend instead.
	urlPrefix string
}

// New creates an empty in-memory store. urlPrefix is prepended to keys when
// SignURL fabricates a URL (e.g. "https://blobs.test/").
func New(urlPrefix string) *Store {
	return &Store{objects: make(map[string]object), urlPrefix: urlPrefix}
}

func (s *Store) Put(_ context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	buf, err := io.ReadAll(io.LimitReader(r, size+1))
	if err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "memstore: reading put body for %q", key)
	}
	if int64(len(buf)) != size {
		return apierrors.New(apierrors.Invalid, "memstore: put for %q declared size %d but got %d bytes", key, size, len(buf))
	}
	m := make(map[string]string, len(metadata))
	for k, v := range metadata {
		m[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{bytes: buf, meta: m}
	return nil
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, apierrors.New(apierrors.NotFound, "memstore: key %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(obj.bytes)), nil
}

func (s *Store) Head(_ context.Context, key string) (*objectstore.Metadata, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, apierrors.New(apierrors.NotFound, "memstore: key %q not found", key)
	}
	return &objectstore.Metadata{Size: int64(len(obj.bytes)), Meta: obj.meta}, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.objects, k)
	}
	return nil
}

func (s *Store) SignURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", apierrors.New(apierrors.NotFound, "memstore: key %q not found", key)
	}
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("%s%s?expires=%d", s.urlPrefix, key, expires), nil
}
