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

var deploymentColumns = []string{"id", "app_id", "name", "key", "created_time", "deleted_at"}

// ListDeployments returns every non-deleted deployment for an app.
func (s *Store) ListDeployments(ctx context.Context, appID string) ([]Deployment, error) {
	query, args, err := psql.Select(deploymentColumns...).
		From("deployments").
		Where("app_id = ? AND deleted_at IS NULL", appID).
		OrderBy("created_time ASC").
		ToSql()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "store: build list deployments")
	}
	var deps []Deployment
	if err := s.db.SelectContext(ctx, &deps, query, args...); err != nil {
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "store: list deployments")
	}
	return deps, nil
}

// GetDeploymentByName looks up a deployment by app and name.
func (s *Store) GetDeploymentByName(ctx context.Context, appID, name string) (*Deployment, error) {
	query, args, err := psql.Select(deploymentColumns...).
		From("deployments").
		Where("app_id = ? AND name = ? AND deleted_at IS NULL", appID, name).
		ToSql()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "store: build get deployment")
	}
	var dep Deployment
	if err := s.db.GetContext(ctx, &dep, query, args...); err != nil {
		if isNoRows(err) {
			return nil, apierrors.New(apierrors.NotFound, "store: deployment %q not found", name)
		}
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "store: get deployment")
	}
	return &dep, nil
}

// GetDeploymentByKey looks up a deployment by its public key, the value
// mobile clients present on every update check.
func (s *Store) GetDeploymentByKey(ctx context.Context, key string) (*Deployment, error) {
	query, args, err := psql.Select(deploymentColumns...).
		From("deployments").
		Where("key = ? AND deleted_at IS NULL", key).
		ToSql()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "store: build get deployment by key")
	}
	var dep Deployment
	if err := s.db.GetContext(ctx, &dep, query, args...); err != nil {
		if isNoRows(err) {
			return nil, apierrors.New(apierrors.NotFound, "store: deployment key not recognized")
		}
		return nil, apierrors.Wrap(apierrors.ConnectionFailed, err, "store: get deployment by key")
	}
	return &dep, nil
}

// CreateDeployment inserts a new deployment row.
func (s *Store) CreateDeployment(ctx context.Context, dep Deployment) error {
	query, args, err := psql.Insert("deployments").
		Columns(deploymentColumns...).
		Values(dep.ID, dep.AppID, dep.Name, dep.Key, dep.CreatedTime, dep.DeletedAt).
		ToSql()
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "store: build create deployment")
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apierrors.New(apierrors.AlreadyExists, "store: deployment %q already exists", dep.Name)
		}
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: create deployment")
	}
	return nil
}

// RenameDeployment updates a deployment's display name.
func (s *Store) RenameDeployment(ctx context.Context, id, newName string) error {
	query, args, err := psql.Update("deployments").
		Set("name", newName).
		Where("id = ? AND deleted_at IS NULL", id).
		ToSql()
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "store: build rename deployment")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return apierrors.New(apierrors.AlreadyExists, "store: deployment %q already exists", newName)
		}
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: rename deployment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierrors.New(apierrors.NotFound, "store: deployment %q not found", id)
	}
	return nil
}

// RemoveDeployment soft-deletes a deployment.
func (s *Store) RemoveDeployment(ctx context.Context, id string) error {
	query, args, err := psql.Update("deployments").
		Set("deleted_at", timeNow()).
		Where("id = ? AND deleted_at IS NULL", id).
		ToSql()
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "store: build remove deployment")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: remove deployment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierrors.New(apierrors.NotFound, "store: deployment %q not found", id)
	}
	return nil
}
