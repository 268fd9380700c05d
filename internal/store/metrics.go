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

package store

import (
	"context"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
)

// IncrementMetric performs a collapsing upsert: +delta to the named
// counter, inserting the row at delta if absent. delta may be negative
// (used by active-count rollover) but the stored count never drops below
// zero.
func (s *Store) IncrementMetric(ctx context.Context, deploymentKey, label string, metricType MetricType, delta int64) error {
	query := `
		INSERT INTO metrics (deployment_key, label, type, count)
		VALUES ($1, $2, $3, GREATEST($4, 0))
		ON CONFLICT (deployment_key, label, type)
		DO UPDATE SET count = GREATEST(metrics.count + $4, 0)`
	if _, err := s.db.ExecContext(ctx, query, deploymentKey, label, metricType, delta); err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: increment metric")
	}
	return nil
}

// SummarizeMetrics aggregates the four counters per label for a
// deployment, for the metrics HTTP endpoint.
func (s *Store) SummarizeMetrics(ctx context.Context, deploymentKey string) ([]MetricSummary, error) {
	query := `
		SELECT
			label,
			COALESCE(SUM(count) FILTER (WHERE type = 'active'), 0) AS active,
			COALESCE(SUM(count) FILTER (WHERE type = 'downloaded'), 0) AS downloads,
			COALESCE(SUM(count) FILTER (WHERE type = 'deployment_succeeded'), 0) AS installed,
			COALESCE(SUM(count) FILTER (WHERE type = 'deployment_failed'), 0) AS failed
		FROM metrics
		WHERE deployment_key = $1
		GROUP BY label
		ORDER BY label`
	var rows []MetricSummary
	if err := s.db.SelectContext(ctx, &rows, query, deploymentKey); err != nil {
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "store: summarize metrics")
	}
	return rows, nil
}
