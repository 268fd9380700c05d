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

// Package localdisk is a filesystem-backed objectstore.Store for local
// development and integration tests, standing in for the S3-compatible or
// Cloudflare-bucket-binding backends a production deployment would use.
package localdisk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/objectstore"
)

// Store writes each key as a file under root, plus a ".meta.json" sidecar
// carrying the metadata map. SignURL formats baseURL + "/" + key with an
// expires query parameter; it is not cryptographically verified,
// which is acceptable for a development backend.
type Store struct {
	root    string
	baseURL string
}

// New creates a Store rooted at dir, creating it (and a lock file guarding
// concurrent first-time creation) if necessary.
func New(dir, baseURL string) (*Store, error) {
	lock := flock.New(filepath.Join(os.TempDir(), "codepush-localdisk-"+sanitizeLockName(dir)+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "localdisk: acquiring init lock for %q", dir)
	}
	if locked {
		defer lock.Unlock()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "localdisk: creating root %q", dir)
	}
	return &Store{root: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func sanitizeLockName(dir string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(dir)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *Store) metaPath(key string) string {
	return s.path(key) + ".meta.json"
}

func (s *Store) Put(_ context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "localdisk: creating directory for %q", key)
	}

	f, err := os.Create(p)
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "localdisk: creating %q", key)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "localdisk: writing %q", key)
	}
	if n != size {
		return apierrors.New(apierrors.Invalid, "localdisk: put for %q declared size %d but wrote %d bytes", key, size, n)
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["size"] = strconv.FormatInt(size, 10)
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(s.metaPath(key), metaBytes, 0o644)
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierrors.New(apierrors.NotFound, "localdisk: key %q not found", key)
		}
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "localdisk: opening %q", key)
	}
	return f, nil
}

func (s *Store) Head(_ context.Context, key string) (*objectstore.Metadata, error) {
	info, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierrors.New(apierrors.NotFound, "localdisk: key %q not found", key)
		}
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "localdisk: stat %q", key)
	}

	meta := map[string]string{}
	if b, err := os.ReadFile(s.metaPath(key)); err == nil {
		_ = json.Unmarshal(b, &meta)
	}
	return &objectstore.Metadata{Size: info.Size(), Meta: meta}, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	root := s.root
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(p, ".meta.json") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "localdisk: listing prefix %q", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
			return apierrors.Wrap(apierrors.Internal, err, "localdisk: deleting %q", key)
		}
		_ = os.Remove(s.metaPath(key))
	}
	return nil
}

func (s *Store) SignURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := os.Stat(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return "", apierrors.New(apierrors.NotFound, "localdisk: key %q not found", key)
		}
		return "", apierrors.Wrap(apierrors.ConnectionFailed, err, "localdisk: stat %q", key)
	}
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("%s/%s?expires=%d", s.baseURL, key, expires), nil
}
