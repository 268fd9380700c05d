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

// PromoteOverrides alters a subset of fields on the promoted copy;
// unset fields inherit from the source release.
type PromoteOverrides struct {
	IsDisabled  *bool
	IsMandatory *bool
	Description *string
	Rollout     *int32
}

// Promote copies the current release of src into dst as a new Package
// row, referencing the same blob bytes; no bytes are copied or moved.
func (e *Engine) Promote(ctx context.Context, src, dst store.Deployment, overrides PromoteOverrides, releasedBy string) (*store.Package, error) {
	var newPkg store.Package

	err := e.Store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		srcPkg, err := tx.LatestPackage(ctx, src.ID)
		if err != nil {
			return err
		}

		if dstPkg, err := tx.LatestPackage(ctx, dst.ID); err == nil {
			if err := checkRolloutInProgress(dstPkg); err != nil {
				return err
			}
		} else if apierrors.KindOf(err) != apierrors.NotFound {
			return err
		}

		count, err := tx.CountPackages(ctx, dst.ID)
		if err != nil {
			return err
		}

		newPkg = store.Package{
			ID:                 uuid.New().String(),
			DeploymentID:       dst.ID,
			Label:              fmt.Sprintf("v%d", count+1),
			AppVersion:         srcPkg.AppVersion,
			Description:        srcPkg.Description,
			IsDisabled:         srcPkg.IsDisabled,
			IsMandatory:        srcPkg.IsMandatory,
			Rollout:            srcPkg.Rollout,
			Size:               srcPkg.Size,
			PackageHash:        srcPkg.PackageHash,
			BlobPath:           srcPkg.BlobPath,
			ManifestBlobPath:   srcPkg.ManifestBlobPath,
			ReleaseMethod:      store.ReleaseMethodPromote,
			OriginalLabel:      nullableString(srcPkg.Label),
			OriginalDeployment: nullableString(src.Name),
			ReleasedBy:         nullableString(releasedBy),
			UploadTime:         timeNow(),
		}
		applyPromoteOverrides(&newPkg, overrides)

		return tx.InsertPackage(ctx, newPkg)
	})
	if err != nil {
		return nil, err
	}
	return &newPkg, nil
}

func applyPromoteOverrides(pkg *store.Package, o PromoteOverrides) {
	if o.IsDisabled != nil {
		pkg.IsDisabled = *o.IsDisabled
	}
	if o.IsMandatory != nil {
		pkg.IsMandatory = *o.IsMandatory
	}
	if o.Description != nil {
		pkg.Description = *o.Description
	}
	if o.Rollout != nil {
		pkg.Rollout.Int32 = *o.Rollout
		pkg.Rollout.Valid = true
	}
}
