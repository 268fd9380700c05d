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

package manifest

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, contents := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestGenerateIgnoresMacAndDSStoreEntries(t *testing.T) {
	z := buildZip(t, map[string]string{
		"index.js":              "console.log(1)",
		"__MACOSX/._index.js":   "junk",
		".DS_Store":             "junk",
		"assets/.DS_Store":      "junk",
		"assets/logo.png":       "binary-ish",
	})

	m, err := Generate(z)
	require.NoError(t, err)

	assert.Contains(t, m, "index.js")
	assert.Contains(t, m, "assets/logo.png")
	assert.NotContains(t, m, "__MACOSX/._index.js")
	assert.NotContains(t, m, ".DS_Store")
	assert.NotContains(t, m, "assets/.DS_Store")
}

func TestGenerateFallsBackForNonZipInput(t *testing.T) {
	m, err := Generate([]byte("not a zip"))
	require.NoError(t, err)
	assert.Len(t, m, 1)
	assert.Contains(t, m, "/")
}

func TestPackageHashExcludesReleaseMetadataAndIsOrderIndependent(t *testing.T) {
	z := buildZip(t, map[string]string{
		"index.js":          "a",
		"b.js":               "b",
		".codepushrelease":   `{"unused":true}`,
	})
	m, err := Generate(z)
	require.NoError(t, err)

	h1 := PackageHash(m)

	// Same content, different .codepushrelease payload -> identical hash.
	z2 := buildZip(t, map[string]string{
		"index.js":        "a",
		"b.js":             "b",
		".codepushrelease": `{"unused":false}`,
	})
	m2, err := Generate(z2)
	require.NoError(t, err)
	h2 := PackageHash(m2)

	assert.Equal(t, h1, h2)
}

func TestPackageHashChangesWithContent(t *testing.T) {
	z1 := buildZip(t, map[string]string{"index.js": "a"})
	z2 := buildZip(t, map[string]string{"index.js": "b"})

	m1, err := Generate(z1)
	require.NoError(t, err)
	m2, err := Generate(z2)
	require.NoError(t, err)

	assert.NotEqual(t, PackageHash(m1), PackageHash(m2))
}

func TestCompareDetectsDeletedAndChanged(t *testing.T) {
	old := Manifest{"a.js": "h1", "b.js": "h2", "same.js": "hs"}
	new := Manifest{"a.js": "h1-changed", "same.js": "hs", "c.js": "h3"}

	d := Compare(old, new)
	assert.Equal(t, []string{"b.js"}, d.DeletedFiles)
	assert.Equal(t, []string{"a.js", "c.js"}, d.ChangedFiles)
}

func TestBuildDiffArchiveRoundTrips(t *testing.T) {
	oldZip := buildZip(t, map[string]string{
		"index.js": "old-index",
		"gone.js":  "bye",
		"same.js":  "unchanged",
	})
	newZip := buildZip(t, map[string]string{
		"index.js": "new-index",
		"same.js":  "unchanged",
		"added.js": "new-file",
	})

	oldManifest, err := Generate(oldZip)
	require.NoError(t, err)
	newManifest, err := Generate(newZip)
	require.NoError(t, err)

	diff := Compare(oldManifest, newManifest)
	archive, err := BuildDiffArchive(newZip, diff)
	require.NoError(t, err)

	r, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)

	contents := map[string]string{}
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		buf := new(bytes.Buffer)
		_, err = buf.ReadFrom(rc)
		require.NoError(t, err)
		rc.Close()
		contents[f.Name] = buf.String()
	}

	// Deletions are recorded in hotcodepush.json, not as entries.
	require.Contains(t, contents, "hotcodepush.json")
	var meta hotCodePushManifest
	require.NoError(t, json.Unmarshal([]byte(contents["hotcodepush.json"]), &meta))
	assert.Equal(t, []string{"gone.js"}, meta.DeletedFiles)

	// Changed files are present with the new content; unchanged files are not.
	assert.Equal(t, "new-index", contents["index.js"])
	assert.Equal(t, "new-file", contents["added.js"])
	assert.NotContains(t, contents, "same.js")
}
