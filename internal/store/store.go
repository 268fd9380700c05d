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
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
)

// psql is the squirrel statement builder configured for Postgres's
// dollar-numbered placeholders.
var psql = sq.StatementBuilderType(sq.Dollar)

// Store is the relational store. All mutations that touch more than
// one row run inside a single serializable transaction (the
// concurrency model).
type Store struct {
	db *sqlx.DB
}

// New wraps an already-connected *sqlx.DB. Use sqlx.Connect("postgres", dsn)
// to build one; the DSN and connection pool settings are a config
// ambient) concern outside this package.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

// withTx runs fn inside a serializable transaction, committing on success
// and rolling back on any error (including a panic, which is re-raised
// after rollback).
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return apierrors.Wrap(apierrors.ConnectionFailed, err, "store: begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return apierrors.Wrap(apierrors.Internal, rbErr, "store: rollback after %v", err)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return serializationAwareError(err)
	}
	return nil
}

// serializationAwareError maps a Postgres serialization-failure SQLSTATE
// (40001) to apierrors.Conflict so callers can retry; the "loser
// retries or surfaces Conflict".
func serializationAwareError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "40001" {
		return apierrors.Wrap(apierrors.Conflict, err, "store: serialization failure, retry")
	}
	return apierrors.Wrap(apierrors.Internal, err, "store: commit transaction")
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
