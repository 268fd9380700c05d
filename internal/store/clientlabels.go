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
	"database/sql"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
)

// GetClientLabel returns the label a device is currently recorded on for
// a deployment, or "" if none is recorded yet.
func (s *Store) GetClientLabel(ctx context.Context, deploymentKey, clientID string) (string, error) {
	var label string
	err := s.db.GetContext(ctx, &label,
		`SELECT label FROM client_labels WHERE deployment_key = $1 AND client_id = $2`,
		deploymentKey, clientID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", apierrors.Wrap(apierrors.ConnectionFailed, err, "store: get client label")
	}
	return label, nil
}

// SetClientLabel upserts the label a device is currently on.
func (s *Store) SetClientLabel(ctx context.Context, deploymentKey, clientID, label string) error {
	query := `
		INSERT INTO client_labels (client_id, deployment_key, label)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_id, deployment_key) DO UPDATE SET label = EXCLUDED.label`
	if _, err := s.db.ExecContext(ctx, query, clientID, deploymentKey, label); err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: set client label")
	}
	return nil
}
