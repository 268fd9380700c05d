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

import "sort"

// Diff is the set of changes needed to go from an old manifest to a new one.
type Diff struct {
	DeletedFiles []string
	ChangedFiles []string
}

// Compare produces the Diff between old and new: files present in old but
// absent from new are deletions; files whose hash differs (or that are new)
// are changes. Both slices are sorted for deterministic archive contents.
func Compare(old, new Manifest) Diff {
	var d Diff
	for p := range old {
		if _, ok := new[p]; !ok {
			d.DeletedFiles = append(d.DeletedFiles, p)
		}
	}
	for p, newHash := range new {
		if oldHash, ok := old[p]; !ok || oldHash != newHash {
			d.ChangedFiles = append(d.ChangedFiles, p)
		}
	}
	sort.Strings(d.DeletedFiles)
	sort.Strings(d.ChangedFiles)
	return d
}
