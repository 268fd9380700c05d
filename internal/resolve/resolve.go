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

// Package resolve computes, given a client's update-check query,
// compute the single correct update response by walking a deployment's
// package history. This is the core of the system; every rule here mirrors
// step by step against the package history.
package resolve

import (
	"context"

	"github.com/Masterminds/semver/v3"

	"github.com/yplabs-ltd/codepush-server/internal/blob"
	"github.com/yplabs-ltd/codepush-server/internal/codepush"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

// Query is the client's update-check request.
type Query struct {
	DeploymentKey  string
	AppVersion     string
	PackageHash    string
	Label          string
	ClientUniqueID string
	IsCompanion    bool
}

// UpdateInfo is the resolver's output, the shape both the camelCase and the
// legacy snake_case transports render.
type UpdateInfo struct {
	IsAvailable            bool
	IsMandatory            bool
	AppVersion             string
	PackageHash            string
	Label                  string
	PackageSize            int64
	Description            string
	DownloadURL            string
	ShouldRunBinaryVersion bool
	UpdateAppVersion       bool
}

// Resolver answers update-check queries against the relational store and
// blob service.
type Resolver struct {
	Store *store.Store
	Blob  *blob.Service
}

// New builds a Resolver.
func New(s *store.Store, b *blob.Service) *Resolver {
	return &Resolver{Store: s, Blob: b}
}

// notAvailableNoBinary is the canned response for "this binary version
// can't be served at all" outcomes (steps 2, 5, 6).
func notAvailableNoBinary(appVersion string) *UpdateInfo {
	return &UpdateInfo{IsAvailable: false, ShouldRunBinaryVersion: true, AppVersion: appVersion}
}

// Resolve runs the deterministic resolution algorithm.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*UpdateInfo, error) {
	dep, err := r.Store.GetDeploymentByKey(ctx, q.DeploymentKey)
	if err != nil {
		return nil, err
	}

	history, err := r.Store.PackageHistory(ctx, dep.ID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return notAvailableNoBinary(q.AppVersion), nil
	}

	normalized := codepush.NormalizeVersion(q.AppVersion)
	isPreRelease := codepush.HasPreReleaseTag(normalized)

	var (
		foundRequest         bool
		latestEnabled        *store.Package
		latestSatisfying     *store.Package
		mandatoryPromotion   bool
	)

	for i := len(history) - 1; i >= 0; i-- {
		p := history[i]
		isNewest := i == len(history)-1

		if matchesClient(p, q, isNewest) {
			foundRequest = true
		}

		if latestEnabled == nil && !p.IsDisabled {
			pkg := p
			latestEnabled = &pkg
		}

		satisfiesThis := !p.IsDisabled && (q.IsCompanion || isPreRelease || versionSatisfies(p.AppVersion, normalized))
		if latestSatisfying == nil && satisfiesThis {
			pkg := p
			latestSatisfying = &pkg
		}

		if p.IsMandatory {
			mandatoryPromotion = true
		}

		stopOnMandatorySatisfying := p.IsMandatory && satisfiesThis
		if (foundRequest && latestEnabled != nil && latestSatisfying != nil) || stopOnMandatorySatisfying {
			break
		}
	}

	if latestEnabled == nil {
		return notAvailableNoBinary(q.AppVersion), nil
	}
	if latestSatisfying == nil {
		return notAvailableNoBinary(q.AppVersion), nil
	}

	if q.PackageHash != "" && latestSatisfying.PackageHash == q.PackageHash {
		info := &UpdateInfo{IsAvailable: false, AppVersion: q.AppVersion}
		if isGreaterVersion(normalized, latestEnabled.AppVersion) {
			info.AppVersion = latestEnabled.AppVersion
		} else if !versionSatisfies(latestEnabled.AppVersion, normalized) {
			info.UpdateAppVersion = true
			info.AppVersion = latestEnabled.AppVersion
		}
		return info, nil
	}

	downloadURL, err := r.Blob.GetBlobURL(ctx, latestSatisfying.BlobPath)
	if err != nil {
		return nil, err
	}
	packageSize := latestSatisfying.Size

	if q.PackageHash != "" {
		diffs, err := r.Store.PackageDiffs(ctx, latestSatisfying.ID)
		if err != nil {
			return nil, err
		}
		for _, d := range diffs {
			if d.SourcePackageHash == q.PackageHash {
				diffURL, err := r.Blob.GetBlobURL(ctx, d.BlobPath)
				if err != nil {
					return nil, err
				}
				downloadURL = diffURL
				packageSize = d.Size
				break
			}
		}
	}

	resp := &UpdateInfo{
		IsAvailable: true,
		IsMandatory: mandatoryPromotion || latestSatisfying.IsMandatory,
		AppVersion:  q.AppVersion,
		PackageHash: latestSatisfying.PackageHash,
		Label:       latestSatisfying.Label,
		PackageSize: packageSize,
		Description: latestSatisfying.Description,
		DownloadURL: downloadURL,
	}

	if latestSatisfying.Rollout.Valid && latestSatisfying.Rollout.Int32 < 100 {
		if q.ClientUniqueID == "" {
			resp.IsAvailable = false
		} else if !codepush.InRollout(q.ClientUniqueID, latestSatisfying.PackageHash, int(latestSatisfying.Rollout.Int32)) {
			resp.IsAvailable = false
		}
	}

	return resp, nil
}

// matchesClient implements the "foundRequest" match rule: if the client
// presents neither label nor packageHash, treat the newest release as its
// baseline; otherwise match on label when given, else on packageHash.
func matchesClient(p store.Package, q Query, isNewest bool) bool {
	if q.Label == "" && q.PackageHash == "" {
		return isNewest
	}
	if q.Label != "" {
		return p.Label == q.Label
	}
	return p.PackageHash == q.PackageHash
}

// versionSatisfies reports whether version satisfies rangeStr, falling
// back to literal string equality when either side fails to parse as
// semver (e.g. a bare non-numeric range the client sent verbatim).
func versionSatisfies(rangeStr, version string) bool {
	if rangeStr == version {
		return true
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	c, err := semver.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return c.Check(v)
}

// isGreaterVersion reports whether a is strictly greater than b as semver;
// unparseable input is treated as not-greater.
func isGreaterVersion(a, b string) bool {
	av, aErr := semver.NewVersion(a)
	bv, bErr := semver.NewVersion(b)
	if aErr != nil || bErr != nil {
		return false
	}
	return av.GreaterThan(bv)
}
