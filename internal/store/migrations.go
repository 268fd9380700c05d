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
	"database/sql"
	"embed"

	migrate "github.com/rubenv/sql-migrate"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every pending migration to db.
func Migrate(db *sql.DB) (int, error) {
	source := migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFS,
		Root:       "migrations",
	}
	n, err := migrate.Exec(db, "postgres", source, migrate.Up)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.Internal, err, "store: applying migrations")
	}
	return n, nil
}
