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

// Package release implements committing new bundles, promoting and rolling
// back releases, and patching release metadata, each enforcing the
// package-history invariants (monotonic labels, no duplicate-hash releases,
// at most one unfinished rollout, promote/rollback by reference only)
// inside one store transaction per operation.
package release

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/blob"
	"github.com/yplabs-ltd/codepush-server/internal/log"
	"github.com/yplabs-ltd/codepush-server/internal/manifest"
	"github.com/yplabs-ltd/codepush-server/internal/release/diffworker"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

// maxDiffCandidates bounds how many prior releases are considered for diff
// generation on a new commit.
const maxDiffCandidates = 5

// Engine holds the explicit dependencies every release operation needs,
// following the pattern of an injected Configuration struct
// rather than package-level globals.
type Engine struct {
	Store *store.Store
	Blob  *blob.Service
	Diffs *diffworker.Pool
	Log   log.Logger
}

// New builds an Engine. diffs may be nil, in which case diff generation is
// skipped (useful for tests that don't care about it).
func New(s *store.Store, b *blob.Service, diffs *diffworker.Pool, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NopLogger{}
	}
	return &Engine{Store: s, Blob: b, Diffs: diffs, Log: logger}
}

// CommitInput is the caller-supplied half of a new release.
type CommitInput struct {
	AppVersion  string
	Description string
	IsMandatory bool
	IsDisabled  bool
	Rollout     *int32
	ZipBytes    []byte
	ReleasedBy  string
}

func blobPrefix(appID, deploymentID string) string {
	return fmt.Sprintf("apps/%s/deployments/%s", appID, deploymentID)
}

// CommitPackage uploads a new bundle, enforcing the package-history
// invariants, and enqueues deferred diff generation against prior
// matching-version releases.
func (e *Engine) CommitPackage(ctx context.Context, appID string, deployment store.Deployment, in CommitInput) (*store.Package, error) {
	m, err := manifest.Generate(in.ZipBytes)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Invalid, err, "release: generate manifest")
	}
	packageHash := manifest.PackageHash(m)

	newID := uuid.New().String()
	blobPath := fmt.Sprintf("%s/%s.zip", blobPrefix(appID, deployment.ID), newID)
	manifestPath := fmt.Sprintf("%s/%s-manifest.json", blobPrefix(appID, deployment.ID), newID)

	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "release: marshal manifest")
	}

	// Write the blobs before the row that references them exists, so a
	// crash or write failure here leaves at worst an orphaned blob, never a
	// Package row whose downloadURL 404s.
	if err := e.Blob.PutAt(ctx, blobPath, bytes.NewReader(in.ZipBytes), int64(len(in.ZipBytes)), map[string]string{"size": fmt.Sprintf("%d", len(in.ZipBytes))}); err != nil {
		return nil, err
	}
	if err := e.Blob.PutAt(ctx, manifestPath, bytes.NewReader(manifestJSON), int64(len(manifestJSON)), nil); err != nil {
		return nil, err
	}

	var priorForDiff []store.Package
	var pkg store.Package

	err = e.Store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		latest, err := tx.LatestPackage(ctx, deployment.ID)
		hasLatest := err == nil
		if err != nil && apierrors.KindOf(err) != apierrors.NotFound {
			return err
		}

		if hasLatest {
			if err := checkRolloutInProgress(latest); err != nil {
				return err
			}
			if latest.PackageHash == packageHash {
				return apierrors.New(apierrors.AlreadyExists, "release: identical bundle already released as %s", latest.Label)
			}
		}

		count, err := tx.CountPackages(ctx, deployment.ID)
		if err != nil {
			return err
		}
		label := fmt.Sprintf("v%d", count+1)

		pkg = store.Package{
			ID:               newID,
			DeploymentID:     deployment.ID,
			Label:            label,
			AppVersion:       in.AppVersion,
			Description:      in.Description,
			IsDisabled:       in.IsDisabled,
			IsMandatory:      in.IsMandatory,
			Size:             int64(len(in.ZipBytes)),
			PackageHash:      packageHash,
			BlobPath:         blobPath,
			ManifestBlobPath: sql.NullString{String: manifestPath, Valid: true},
			ReleaseMethod:    store.ReleaseMethodUpload,
			ReleasedBy:       nullableString(in.ReleasedBy),
			UploadTime:       timeNow(),
		}
		if in.Rollout != nil {
			pkg.Rollout = sql.NullInt32{Int32: *in.Rollout, Valid: true}
		}

		if err := tx.InsertPackage(ctx, pkg); err != nil {
			return err
		}

		history, err := tx.PackageHistory(ctx, deployment.ID)
		if err != nil {
			return err
		}
		priorForDiff = selectDiffCandidates(history, pkg)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.enqueueDiffs(appID, deployment.ID, pkg, m, priorForDiff)
	return &pkg, nil
}

// checkRolloutInProgress enforces that at most one release may have an
// unfinished partial rollout at a time.
func checkRolloutInProgress(latest *store.Package) error {
	if latest.Rollout.Valid && latest.Rollout.Int32 < 100 && !latest.IsDisabled {
		return apierrors.New(apierrors.Conflict, "release: %s has an unfinished rollout", latest.Label)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeNow is a seam for deterministic tests.
var timeNow = time.Now
