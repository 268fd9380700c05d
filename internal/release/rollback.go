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
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

// Rollback inserts a new release that reverts a deployment to an earlier
// one's content. If targetLabel is empty the second-most-recent release is
// used.
func (e *Engine) Rollback(ctx context.Context, deployment store.Deployment, targetLabel, releasedBy string) (*store.Package, error) {
	var newPkg store.Package

	err := e.Store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		history, err := tx.PackageHistory(ctx, deployment.ID)
		if err != nil {
			return err
		}
		if len(history) < 2 {
			return apierrors.New(apierrors.Conflict, "release: no prior release to roll back to")
		}
		current := history[len(history)-1]

		var target store.Package
		if targetLabel == "" {
			target = history[len(history)-2]
		} else {
			found := false
			for _, p := range history {
				if p.Label == targetLabel {
					target = p
					found = true
					break
				}
			}
			if !found {
				return apierrors.New(apierrors.NotFound, "release: label %q not found", targetLabel)
			}
			if target.Label == current.Label {
				return apierrors.New(apierrors.Conflict, "release: cannot roll back to the current release")
			}
		}

		if target.AppVersion != current.AppVersion {
			return apierrors.New(apierrors.Conflict, "release: cannot rollback across binary versions")
		}

		count, err := tx.CountPackages(ctx, deployment.ID)
		if err != nil {
			return err
		}

		newPkg = store.Package{
			ID:                 uuid.New().String(),
			DeploymentID:       deployment.ID,
			Label:              fmt.Sprintf("v%d", count+1),
			AppVersion:         target.AppVersion,
			Description:        target.Description,
			IsDisabled:         target.IsDisabled,
			IsMandatory:        target.IsMandatory,
			Rollout:            target.Rollout,
			Size:               target.Size,
			PackageHash:        target.PackageHash,
			BlobPath:           target.BlobPath,
			ManifestBlobPath:   target.ManifestBlobPath,
			ReleaseMethod:      store.ReleaseMethodRollback,
			OriginalLabel:      nullableString(target.Label),
			ReleasedBy:         nullableString(releasedBy),
			UploadTime:         timeNow(),
		}
		return tx.InsertPackage(ctx, newPkg)
	})
	if err != nil {
		return nil, err
	}
	return &newPkg, nil
}

// UpdateRelease patches mutable fields on an existing release, emitting no
// new blob or row.
func (e *Engine) UpdateRelease(ctx context.Context, deployment store.Deployment, label string, patch store.UpdatePackageFields) error {
	return e.Store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		return tx.UpdatePackage(ctx, deployment.ID, label, patch)
	})
}
