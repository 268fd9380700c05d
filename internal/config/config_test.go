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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codepush.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr = ":9000"
object_store = "s3"
s3_bucket = "releases"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "s3", cfg.ObjectStore)
	assert.Equal(t, "releases", cfg.S3Bucket)
}

func TestEnvOverridesTakePriorityOverFile(t *testing.T) {
	t.Setenv("CODEPUSH_LISTEN_ADDR", ":7777")
	t.Setenv("CODEPUSH_DIFF_WORKER_COUNT", "9")

	path := filepath.Join(t.TempDir(), "codepush.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr = ":9000"
diff_worker_count = 2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, 9, cfg.DiffWorkerCount)
}
