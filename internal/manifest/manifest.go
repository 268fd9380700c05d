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

// Package manifest parses a bundle ZIP into a content
// manifest, computing the package's canonical hash, and diffing two
// manifests to produce incremental update archives.
package manifest

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// releaseMetadataFile is excluded from the package hash.
const releaseMetadataFile = ".codepushrelease"

// Manifest maps a normalized forward-slash file path to the hex SHA-256 of
// its contents.
type Manifest map[string]string

var ignoreGlobs = []glob.Glob{
	glob.MustCompile("__MACOSX/*"),
	glob.MustCompile(".DS_Store"),
	glob.MustCompile("*/.DS_Store"),
}

func isIgnored(p string) bool {
	for _, g := range ignoreGlobs {
		if g.Match(p) {
			return true
		}
	}
	return false
}

func normalizePath(p string) string {
	return strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "./")
}

// Generate decompresses a bundle ZIP and builds its Manifest. A non-ZIP
// input falls back to the single-entry manifest {"/" : sha256(bytes)},
// when constructing the canonical hash.
func Generate(zipBytes []byte) (Manifest, error) {
	r, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return Manifest{"/": hashBytes(zipBytes)}, nil
	}

	m := make(Manifest, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		p := normalizePath(f.Name)
		if isIgnored(p) {
			continue
		}
		h, err := hashZipEntry(f)
		if err != nil {
			return nil, err
		}
		m[p] = h
	}
	return m, nil
}

func hashZipEntry(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// PackageHash computes the release's content identity: SHA-256 over the
// JSON array of sorted "path:hex" entries, excluding .codepushrelease.
// This is the canonical identity used for duplicate-release detection and for
// matching a client's reported packageHash.
func PackageHash(m Manifest) string {
	entries := make([]string, 0, len(m))
	for p, h := range m {
		if p == releaseMetadataFile {
			continue
		}
		entries = append(entries, p+":"+h)
	}
	sort.Strings(entries)

	encoded, _ := json.Marshal(entries)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
