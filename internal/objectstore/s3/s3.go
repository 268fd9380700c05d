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

// Package s3 implements objectstore.Store against any S3-compatible HTTPS
// endpoint using hand-rolled AWS Signature Version 4 requests. No AWS SDK
// appears anywhere in the retrieved examples, so this talks HTTP directly
// rather than pulling in an out-of-corpus client library (see DESIGN.md).
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/objectstore"
)

// Store talks to a single S3-compatible bucket.
type Store struct {
	Endpoint  string // e.g. "https://s3.us-east-1.amazonaws.com"
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string

	httpClient *http.Client
}

// New builds a Store. httpClient may be nil, in which case http.DefaultClient is used.
func New(endpoint, region, bucket, accessKey, secretKey string, httpClient *http.Client) *Store {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Store{
		Endpoint:   strings.TrimSuffix(endpoint, "/"),
		Region:     region,
		Bucket:     bucket,
		AccessKey:  accessKey,
		SecretKey:  secretKey,
		httpClient: httpClient,
	}
}

func (s *Store) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.Endpoint, s.Bucket, url.PathEscape(key))
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	body, err := io.ReadAll(io.LimitReader(r, size+1))
	if err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "s3: reading put body for %q", key)
	}
	if int64(len(body)) != size {
		return apierrors.New(apierrors.Invalid, "s3: put for %q declared size %d but got %d bytes", key, size, len(body))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(key), bytes.NewReader(body))
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "s3: building put request for %q", key)
	}
	for k, v := range metadata {
		req.Header.Set("X-Amz-Meta-"+k, v)
	}
	s.sign(req, body)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "s3: put %q", key)
	}
	defer resp.Body.Close()
	return classifyResponse(resp, key)
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(key), nil)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "s3: building get request for %q", key)
	}
	s.sign(req, nil)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "s3: get %q", key)
	}
	if err := classifyResponse(resp, key); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func (s *Store) Head(ctx context.Context, key string) (*objectstore.Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.objectURL(key), nil)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "s3: building head request for %q", key)
	}
	s.sign(req, nil)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "s3: head %q", key)
	}
	defer resp.Body.Close()
	if err := classifyResponse(resp, key); err != nil {
		return nil, err
	}

	meta := map[string]string{}
	for k := range resp.Header {
		if strings.HasPrefix(strings.ToLower(k), "x-amz-meta-") {
			meta[strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")] = resp.Header.Get(k)
		}
	}
	size, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	return &objectstore.Metadata{Size: size, Meta: meta}, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/%s?list-type=2&prefix=%s", s.Endpoint, s.Bucket, url.QueryEscape(prefix))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "s3: building list request for prefix %q", prefix)
	}
	s.sign(req, nil)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "s3: listing prefix %q", prefix)
	}
	defer resp.Body.Close()
	if err := classifyResponse(resp, prefix); err != nil {
		return nil, err
	}
	return parseListBucketKeys(resp.Body)
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(key), nil)
		if err != nil {
			return apierrors.Wrap(apierrors.Internal, err, "s3: building delete request for %q", key)
		}
		s.sign(req, nil)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return apierrors.Wrap(apierrors.ConnectionFailed, err, "s3: delete %q", key)
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
			return apierrors.New(apierrors.Internal, "s3: delete %q failed with status %d", key, resp.StatusCode)
		}
	}
	return nil
}

// SignURL returns a presigned GET URL valid for ttl, using SigV4 query
// signing instead of a header-based signature.
func (s *Store) SignURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	return s.presignedGetURL(key, now, ttl), nil
}

func classifyResponse(resp *http.Response, key string) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apierrors.New(apierrors.NotFound, "s3: key %q not found", key)
	case resp.StatusCode >= 500:
		return apierrors.New(apierrors.ConnectionFailed, "s3: server error %d for %q", resp.StatusCode, key)
	case resp.StatusCode >= 300:
		return apierrors.New(apierrors.Internal, "s3: unexpected status %d for %q", resp.StatusCode, key)
	}
	return nil
}

func parseListBucketKeys(r io.Reader) ([]string, error) {
	// Minimal ListBucketResult <Key> extraction without a full XML dependency,
	// consistent with the rest of this package (see DESIGN.md).
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var keys []string
	const open, close = "<Key>", "</Key>"
	rest := string(body)
	for {
		i := strings.Index(rest, open)
		if i < 0 {
			break
		}
		rest = rest[i+len(open):]
		j := strings.Index(rest, close)
		if j < 0 {
			break
		}
		keys = append(keys, rest[:j])
		rest = rest[j+len(close):]
	}
	sort.Strings(keys)
	return keys, nil
}
