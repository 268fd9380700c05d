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

// javaStringHash reproduces java.lang.String.hashCode(): h = 31*h + c for
// each UTF-16 code unit c, with 32-bit signed wraparound. Go's int32
// arithmetic already wraps on overflow, so this is a direct transliteration.
// Bit-exactness here is load-bearing: it is what keeps a given device's
// rollout bucket stable across server implementations.
func javaStringHash(s string) int32 {
	var h int32
	for _, r := range s {
		if r <= 0xFFFF {
			h = 31*h + int32(r)
			continue
		}
		// Outside the BMP, Java represents the rune as a UTF-16 surrogate
		// pair; fold both code units through the same recurrence.
		r -= 0x10000
		high := 0xD800 + (r >> 10)
		low := 0xDC00 + (r & 0x3FF)
		h = 31*h + int32(high)
		h = 31*h + int32(low)
	}
	return h
}

// RolloutBucket computes the deterministic rollout bucket in [0, 100) for
// (clientUniqueId, packageHash).
func RolloutBucket(clientUniqueID, packageHash string) int {
	h := javaStringHash(clientUniqueID + packageHash)
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return int(abs % 100)
}

// InRollout reports whether the client identified by (clientUniqueId,
// packageHash) falls inside a rollout of percent% (0 or negative excludes
// everyone, 100 or over-100 includes everyone).
func InRollout(clientUniqueID, packageHash string, percent int) bool {
	if percent >= 100 {
		return true
	}
	if percent <= 0 {
		return false
	}
	return RolloutBucket(clientUniqueID, packageHash) < percent
}
