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

// Package metrics translates the three events a client SDK reports
// (download, deployment status, deployment change) into the collapsing
// counters the relational store keeps per deployment/label.
package metrics

import (
	"context"

	"github.com/yplabs-ltd/codepush-server/internal/store"
)

// Reporter records client-reported telemetry for a deployment.
type Reporter struct {
	Store *store.Store
}

// New builds a Reporter.
func New(s *store.Store) *Reporter {
	return &Reporter{Store: s}
}

// RecordDownload bumps the "downloaded" counter for a label.
func (r *Reporter) RecordDownload(ctx context.Context, deploymentKey, label string) error {
	return r.Store.IncrementMetric(ctx, deploymentKey, label, store.MetricDownloaded, 1)
}

// DeploymentStatus is the outcome a client SDK reports after attempting to
// run an update.
type DeploymentStatus string

const (
	StatusSucceeded DeploymentStatus = "DeploymentSucceeded"
	StatusFailed    DeploymentStatus = "DeploymentFailed"
)

// RecordDeploymentStatus applies a status report. A success marks the
// device as active on label (and records it in client_labels so a later
// RecordDeployment can find the device's previous label); a failure only
// bumps the failure counter and leaves the device's recorded label alone.
func (r *Reporter) RecordDeploymentStatus(ctx context.Context, deploymentKey, label string, status DeploymentStatus, clientID string) error {
	switch status {
	case StatusSucceeded:
		if err := r.Store.IncrementMetric(ctx, deploymentKey, label, store.MetricDeploymentSucceeded, 1); err != nil {
			return err
		}
		if err := r.Store.IncrementMetric(ctx, deploymentKey, label, store.MetricActive, 1); err != nil {
			return err
		}
		if clientID != "" {
			if err := r.Store.SetClientLabel(ctx, deploymentKey, clientID, label); err != nil {
				return err
			}
		}
		return nil
	case StatusFailed:
		return r.Store.IncrementMetric(ctx, deploymentKey, label, store.MetricDeploymentFailed, 1)
	default:
		return nil
	}
}

// RecordDeployment reports that a device is now running label, having
// previously run previousLabel (if any). The active count moves from the
// old label to the new one.
func (r *Reporter) RecordDeployment(ctx context.Context, deploymentKey, label, clientID, previousLabel string) error {
	if previousLabel != "" && previousLabel != label {
		if err := r.Store.IncrementMetric(ctx, deploymentKey, previousLabel, store.MetricActive, -1); err != nil {
			return err
		}
	}
	if err := r.Store.IncrementMetric(ctx, deploymentKey, label, store.MetricActive, 1); err != nil {
		return err
	}
	if clientID != "" {
		return r.Store.SetClientLabel(ctx, deploymentKey, clientID, label)
	}
	return nil
}

// DeactivateLabel decrements the active counter for a label on its own,
// used when a client moves off a deployment key entirely (rather than just
// switching labels within the same one) and the old key's active count must
// be reconciled before the new key records anything.
func (r *Reporter) DeactivateLabel(ctx context.Context, deploymentKey, label string) error {
	return r.Store.IncrementMetric(ctx, deploymentKey, label, store.MetricActive, -1)
}

// Summary is the per-label rollup served by the deployment metrics
// endpoint.
type Summary = store.MetricSummary

// Summarize returns the current counters for every label of a deployment.
func (r *Reporter) Summarize(ctx context.Context, deploymentKey string) ([]Summary, error) {
	return r.Store.SummarizeMetrics(ctx, deploymentKey)
}

// PreviousLabel returns the label a device was last recorded on, or "" if
// none is known.
func (r *Reporter) PreviousLabel(ctx context.Context, deploymentKey, clientID string) (string, error) {
	return r.Store.GetClientLabel(ctx, deploymentKey, clientID)
}
