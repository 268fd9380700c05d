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
	"fmt"
	"io"
)

// hotCodePushManifest is the JSON body of the diff archive's
// "hotcodepush.json" entry.
type hotCodePushManifest struct {
	DeletedFiles []string `json:"deletedFiles"`
}

// BuildDiffArchive builds a ZIP containing only diff.ChangedFiles (copied
// verbatim from newZipBytes) plus a "hotcodepush.json" listing
// diff.DeletedFiles.
func BuildDiffArchive(newZipBytes []byte, diff Diff) ([]byte, error) {
	src, err := zip.NewReader(bytes.NewReader(newZipBytes), int64(len(newZipBytes)))
	if err != nil {
		return nil, fmt.Errorf("manifest: building diff archive: source is not a valid zip: %w", err)
	}
	byName := make(map[string]*zip.File, len(src.File))
	for _, f := range src.File {
		byName[normalizePath(f.Name)] = f
	}

	var out bytes.Buffer
	w := zip.NewWriter(&out)

	metaBytes, err := json.Marshal(hotCodePushManifest{DeletedFiles: diff.DeletedFiles})
	if err != nil {
		return nil, err
	}
	metaWriter, err := w.Create("hotcodepush.json")
	if err != nil {
		return nil, err
	}
	if _, err := metaWriter.Write(metaBytes); err != nil {
		return nil, err
	}

	for _, p := range diff.ChangedFiles {
		f, ok := byName[p]
		if !ok {
			// The changed-file set was derived from this same archive's
			// manifest; an entry missing here means the caller passed a
			// diff computed against a different zip.
			return nil, fmt.Errorf("manifest: changed file %q not found in new archive", p)
		}
		if err := copyZipEntry(w, f, p); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func copyZipEntry(w *zip.Writer, f *zip.File, name string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	entry, err := w.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, rc)
	return err
}
