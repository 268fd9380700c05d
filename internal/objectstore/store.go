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

// Package objectstore defines the bytes-in/bytes-out contract every
// blob backend (local disk, S3-compatible, or a Cloudflare-style bucket
// binding) implements. The rest of the core only ever depends on the Store
// interface.
package objectstore

import (
	"context"
	"io"
	"time"
)

// Metadata is what Head returns about a stored object.
type Metadata struct {
	Size int64
	Meta map[string]string
}

// Store is the object storage contract consumed by the blob service.
type Store interface {
	// Put writes size bytes read from r to key, alongside metadata.
	Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error

	// Get opens key for reading. The caller must close the returned
	// ReadCloser. Returns an apierrors NotFound error if key is absent.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Head returns metadata about key without fetching its bytes. Returns
	// an apierrors NotFound error if key is absent.
	Head(ctx context.Context, key string) (*Metadata, error)

	// List returns every key with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the given keys. Deleting an absent key is not an error.
	Delete(ctx context.Context, keys ...string) error

	// SignURL produces a short-lived, presigned download URL for key.
	SignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
