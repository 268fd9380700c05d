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

package codepush

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVersion(t *testing.T) {
	cases := map[string]string{
		"1":           "1.0.0",
		"1.0":         "1.0.0",
		"1.0+build":   "1.0.0+build",
		"1.2-beta":    "1.2.0-beta",
		"1.2.3":       "1.2.3",
		"1.2.3-rc.1":  "1.2.3-rc.1",
		"1.2.3+build": "1.2.3+build",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeVersion(in), "input %q", in)
	}
}

func TestHasPreReleaseTag(t *testing.T) {
	assert.True(t, HasPreReleaseTag(NormalizeVersion("1.2-beta")))
	assert.False(t, HasPreReleaseTag(NormalizeVersion("1.2.0+build")))
}

func TestGenerateKeyShapeAndUniqueness(t *testing.T) {
	a, err := GenerateKey("dk_")
	require.NoError(t, err)
	b, err := GenerateKey("dk_")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, "dk_"))
	assert.Len(t, a, len("dk_")+32)
	assert.NotEqual(t, a, b)
}

func TestGenerateDeploymentAndAccessKeyPrefixes(t *testing.T) {
	dk, err := GenerateDeploymentKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dk, "dk_"))

	ck, err := GenerateAccessKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ck, "ck_"))
}

func TestRolloutBucketDeterministic(t *testing.T) {
	b1 := RolloutBucket("client-1", "hash-abc")
	b2 := RolloutBucket("client-1", "hash-abc")
	assert.Equal(t, b1, b2)
	assert.GreaterOrEqual(t, b1, 0)
	assert.Less(t, b1, 100)
}

func TestInRolloutBoundaries(t *testing.T) {
	// 0 excludes every client.
	assert.False(t, InRollout("any-client", "any-hash", 0))
	// 100 (or null represented by the caller as >=100) includes every client.
	assert.True(t, InRollout("any-client", "any-hash", 100))

	// Whatever a client's bucket is, raising the percentage above it
	// eventually includes them, and it stays included at 100.
	bucket := RolloutBucket("c1", "h1")
	assert.False(t, InRollout("c1", "h1", bucket))
	assert.True(t, InRollout("c1", "h1", bucket+1))
	assert.True(t, InRollout("c1", "h1", 100))
}

func TestJavaStringHashKnownValues(t *testing.T) {
	// "" hashes to 0 and "a" hashes to 97 under java.lang.String.hashCode().
	assert.Equal(t, int32(0), javaStringHash(""))
	assert.Equal(t, int32(97), javaStringHash("a"))
	// "hello" is a widely cited reference value for this algorithm.
	assert.Equal(t, int32(99162322), javaStringHash("hello"))
}
