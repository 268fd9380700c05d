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

import "strings"

// NormalizeVersion expands shorthand version ranges into a concrete value:
//
//	"N"          -> "N.0.0"
//	"N.M"        -> "N.M.0"
//	"N.M±tag"    -> "N.M.0±tag"
//	anything else (already major.minor.patch, with or without a tag) is
//	returned unchanged.
//
// "±tag" means a pre-release/build suffix introduced by '-' or '+', which is
// where the numeric core ends.
func NormalizeVersion(v string) string {
	core, tag := splitVersionTag(v)
	switch strings.Count(core, ".") {
	case 0:
		core += ".0.0"
	case 1:
		core += ".0"
	}
	return core + tag
}

// splitVersionTag splits v into its leading numeric-dotted core and the
// remaining tag (which, if present, starts with '-' or '+' and is returned
// verbatim so pre-release and build metadata both survive).
func splitVersionTag(v string) (core, tag string) {
	for i, r := range v {
		if r == '-' || r == '+' {
			return v[:i], v[i:]
		}
	}
	return v, ""
}

// HasPreReleaseTag reports whether the normalized version carries a
// pre-release tag ('-'), used by the resolver to admit pre-release clients
// into latestSatisfying regardless of range match.
func HasPreReleaseTag(normalized string) bool {
	return strings.Contains(normalized, "-")
}
