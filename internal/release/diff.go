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

package release

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/manifest"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

// selectDiffCandidates picks up to maxDiffCandidates prior releases (most
// recent first) whose appVersion matches the new package's.
func selectDiffCandidates(history []store.Package, newPkg store.Package) []store.Package {
	var candidates []store.Package
	for i := len(history) - 1; i >= 0 && len(candidates) < maxDiffCandidates; i-- {
		p := history[i]
		if p.ID == newPkg.ID {
			continue
		}
		if !p.ManifestBlobPath.Valid {
			continue
		}
		if appVersionsCompatible(p.AppVersion, newPkg.AppVersion) {
			candidates = append(candidates, p)
		}
	}
	return candidates
}

// appVersionsCompatible implements "exact equality or mutual semver
// satisfaction": literal string equality always matches; otherwise each
// side is checked as a constraint against the other parsed as an exact
// version.
func appVersionsCompatible(a, b string) bool {
	if a == b {
		return true
	}
	av, aErr := semver.NewVersion(a)
	bv, bErr := semver.NewVersion(b)
	if aErr == nil && bErr == nil {
		return av.Equal(bv)
	}
	if ac, err := semver.NewConstraint(a); err == nil && bErr == nil && ac.Check(bv) {
		return true
	}
	if bc, err := semver.NewConstraint(b); err == nil && aErr == nil && bc.Check(av) {
		return true
	}
	return false
}

// enqueueDiffs submits one diff-generation job per candidate onto the
// worker pool. A nil pool (tests that don't care about diffs) is a no-op.
func (e *Engine) enqueueDiffs(appID, deploymentID string, newPkg store.Package, newManifest manifest.Manifest, candidates []store.Package) {
	if e.Diffs == nil {
		return
	}
	for _, prior := range candidates {
		prior := prior
		e.Diffs.Submit(func() error {
			return e.buildAndStoreDiff(appID, deploymentID, newPkg, newManifest, prior)
		})
	}
}

func (e *Engine) buildAndStoreDiff(appID, deploymentID string, newPkg store.Package, newManifest manifest.Manifest, prior store.Package) error {
	ctx := context.Background()

	priorManifestBytes, err := e.Blob.GetBytes(ctx, prior.ManifestBlobPath.String)
	if err != nil {
		return fmt.Errorf("load prior manifest for %s: %w", prior.Label, err)
	}
	var priorManifest manifest.Manifest
	if err := json.Unmarshal(priorManifestBytes, &priorManifest); err != nil {
		return fmt.Errorf("parse prior manifest for %s: %w", prior.Label, err)
	}

	newZip, err := e.Blob.GetBytes(ctx, newPkg.BlobPath)
	if err != nil {
		return fmt.Errorf("load new bundle for %s: %w", newPkg.Label, err)
	}

	d := manifest.Compare(priorManifest, newManifest)
	archive, err := manifest.BuildDiffArchive(newZip, d)
	if err != nil {
		return fmt.Errorf("build diff archive against %s: %w", prior.Label, err)
	}

	diffPath := fmt.Sprintf("%s/diff_%s.zip", blobPrefix(appID, deploymentID), prior.PackageHash)
	if err := e.Blob.PutAt(ctx, diffPath, bytes.NewReader(archive), int64(len(archive)), nil); err != nil {
		return fmt.Errorf("store diff archive against %s: %w", prior.Label, err)
	}

	diffRow := store.PackageDiff{
		ID:                uuid.New().String(),
		PackageID:         newPkg.ID,
		SourcePackageHash: prior.PackageHash,
		Size:              int64(len(archive)),
		BlobPath:          diffPath,
	}
	if err := e.Store.InsertPackageDiff(ctx, diffRow); err != nil {
		if apierrors.KindOf(err) != apierrors.AlreadyExists {
			return fmt.Errorf("record diff against %s: %w", prior.Label, err)
		}
	}
	return nil
}
