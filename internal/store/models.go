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

// Package store is the relational model for accounts, apps,
// deployments, package history, access keys, and metrics, backed by
// sqlx over lib/pq with Masterminds/squirrel as the query builder.
package store

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Permission is a collaborator's role on an app.
type Permission string

const (
	PermissionOwner       Permission = "Owner"
	PermissionCollaborator Permission = "Collaborator"
)

// ReleaseMethod records how a Package row came to exist.
type ReleaseMethod string

const (
	ReleaseMethodUpload   ReleaseMethod = "Upload"
	ReleaseMethodPromote  ReleaseMethod = "Promote"
	ReleaseMethodRollback ReleaseMethod = "Rollback"
)

// MetricType is one of the four counters tracked per deployment/label.
type MetricType string

const (
	MetricActive               MetricType = "active"
	MetricDownloaded           MetricType = "downloaded"
	MetricDeploymentSucceeded  MetricType = "deployment_succeeded"
	MetricDeploymentFailed     MetricType = "deployment_failed"
)

// Account is owned by the external auth collaborator; the core only reads
// it and appends linked providers.
type Account struct {
	ID              string         `db:"id"`
	Email           string         `db:"email"`
	Name            string         `db:"name"`
	LinkedProviders pq.StringArray `db:"linked_providers"`
	CreatedTime     time.Time      `db:"created_time"`
	DeletedAt       sql.NullTime   `db:"deleted_at"`
}

// AccessKey authenticates a single account via a bearer token.
type AccessKey struct {
	ID           string       `db:"id"`
	AccountID    string       `db:"account_id"`
	Name         string       `db:"name"`
	FriendlyName string       `db:"friendly_name"`
	CreatedBy    string       `db:"created_by"`
	CreatedTime  time.Time    `db:"created_time"`
	Expires      time.Time    `db:"expires"`
	IsSession    bool         `db:"is_session"`
	DeletedAt    sql.NullTime `db:"deleted_at"`
}

// Masked returns a copy of k with Name replaced by the hidden-secret
// placeholder, for use in any listing response.
func (k AccessKey) Masked() AccessKey {
	k.Name = "(hidden)"
	return k
}

// App is the grouping entity owning a set of deployments and collaborators.
type App struct {
	ID          string       `db:"id"`
	AccountID   string       `db:"account_id"` // owning account, for per-account name uniqueness
	Name        string       `db:"name"`
	CreatedTime time.Time    `db:"created_time"`
	DeletedAt   sql.NullTime `db:"deleted_at"`
}

// Collaborator is a composite-key row linking an account to an app.
type Collaborator struct {
	AppID      string     `db:"app_id"`
	AccountID  string     `db:"account_id"`
	Permission Permission `db:"permission"`
}

// Deployment is a named release channel within an app (e.g. "Staging").
type Deployment struct {
	ID          string       `db:"id"`
	AppID       string       `db:"app_id"`
	Name        string       `db:"name"`
	Key         string       `db:"key"`
	CreatedTime time.Time    `db:"created_time"`
	DeletedAt   sql.NullTime `db:"deleted_at"`
}

// Package is a single release within a deployment's history.
type Package struct {
	ID                 string         `db:"id"`
	DeploymentID       string         `db:"deployment_id"`
	Label              string         `db:"label"`
	AppVersion         string         `db:"app_version"`
	Description        string         `db:"description"`
	IsDisabled         bool           `db:"is_disabled"`
	IsMandatory        bool           `db:"is_mandatory"`
	Rollout            sql.NullInt32  `db:"rollout"`
	Size               int64          `db:"size"`
	PackageHash        string         `db:"package_hash"`
	BlobPath           string         `db:"blob_path"`
	ManifestBlobPath   sql.NullString `db:"manifest_blob_path"`
	ReleaseMethod      ReleaseMethod  `db:"release_method"`
	OriginalLabel      sql.NullString `db:"original_label"`
	OriginalDeployment sql.NullString `db:"original_deployment"`
	ReleasedBy         sql.NullString `db:"released_by"`
	UploadTime         time.Time      `db:"upload_time"`
	DeletedAt          sql.NullTime   `db:"deleted_at"`
}

// PackageDiff records a precomputed diff archive from an older release's
// hash to this package.
type PackageDiff struct {
	ID                string `db:"id"`
	PackageID         string `db:"package_id"`
	SourcePackageHash string `db:"source_package_hash"`
	Size              int64  `db:"size"`
	BlobPath          string `db:"blob_path"`
}

// Metric is one collapsing counter row.
type Metric struct {
	DeploymentKey string     `db:"deployment_key"`
	Label         string     `db:"label"`
	Type          MetricType `db:"type"`
	Count         int64      `db:"count"`
}

// MetricSummary is the read-side aggregation consumed by the metrics
// HTTP endpoint, one row per label.
type MetricSummary struct {
	Label      string `db:"label"`
	Active     int64  `db:"active"`
	Downloads  int64  `db:"downloads"`
	Installed  int64  `db:"installed"`
	Failed     int64  `db:"failed"`
}

// ClientLabel tracks which release label a device currently runs, to
// support decrementing the prior label's active count on rollover.
type ClientLabel struct {
	DeploymentKey string `db:"deployment_key"`
	ClientID      string `db:"client_id"`
	Label         string `db:"label"`
}
