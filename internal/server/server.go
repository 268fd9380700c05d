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

// Package server is the thin net/http + gorilla/mux adapter that exposes
// the core over HTTP. It owns exactly one responsibility beyond routing:
// translating an apierrors.Kind into a status code. Everything else is
// delegated to internal/resolve, internal/release, internal/metrics,
// internal/access and internal/store.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/yplabs-ltd/codepush-server/internal/access"
	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/auth"
	"github.com/yplabs-ltd/codepush-server/internal/blob"
	"github.com/yplabs-ltd/codepush-server/internal/log"
	"github.com/yplabs-ltd/codepush-server/internal/metrics"
	"github.com/yplabs-ltd/codepush-server/internal/release"
	"github.com/yplabs-ltd/codepush-server/internal/resolve"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

// Server wires every core component into a routable http.Handler.
type Server struct {
	Store    *store.Store
	Blob     *blob.Service
	Resolver *resolve.Resolver
	Release  *release.Engine
	Metrics  *metrics.Reporter
	Guard    *access.Guard
	Identity auth.Identity
	Log      log.Logger

	router *mux.Router
}

// New builds a Server and registers its routes.
func New(s *store.Store, b *blob.Service, r *resolve.Resolver, rel *release.Engine, m *metrics.Reporter, g *access.Guard, id auth.Identity, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NopLogger{}
	}
	srv := &Server{Store: s, Blob: b, Resolver: r, Release: rel, Metrics: m, Guard: g, Identity: id, Log: logger}
	srv.router = mux.NewRouter()
	srv.registerRoutes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/updateCheck", s.handleUpdateCheck).Methods(http.MethodGet)
	s.router.HandleFunc("/v0.1/public/codepush/update_check", s.handleUpdateCheckLegacy).Methods(http.MethodGet)
	s.router.HandleFunc("/reportStatus/deploy", s.handleReportDeployStatus).Methods(http.MethodPost)
	s.router.HandleFunc("/reportStatus/download", s.handleReportDownload).Methods(http.MethodPost)

	authed := s.router.NewRoute().Subrouter()
	authed.Use(s.authenticate)

	authed.HandleFunc("/apps", s.handleListApps).Methods(http.MethodGet)
	authed.HandleFunc("/apps", s.handleCreateApp).Methods(http.MethodPost)
	authed.HandleFunc("/apps/{app}", s.handleGetApp).Methods(http.MethodGet)
	authed.HandleFunc("/apps/{app}", s.handleRemoveApp).Methods(http.MethodDelete)
	authed.HandleFunc("/apps/{app}/transfer/{email}", s.handleTransferApp).Methods(http.MethodPost)
	authed.HandleFunc("/apps/{app}/collaborators/{email}", s.handleAddCollaborator).Methods(http.MethodPost)
	authed.HandleFunc("/apps/{app}/collaborators/{email}", s.handleRemoveCollaborator).Methods(http.MethodDelete)

	authed.HandleFunc("/apps/{app}/deployments", s.handleListDeployments).Methods(http.MethodGet)
	authed.HandleFunc("/apps/{app}/deployments", s.handleCreateDeployment).Methods(http.MethodPost)
	authed.HandleFunc("/apps/{app}/deployments/{dep}", s.handleRemoveDeployment).Methods(http.MethodDelete)
	authed.HandleFunc("/apps/{app}/deployments/{dep}", s.handleRenameDeployment).Methods(http.MethodPatch)
	authed.HandleFunc("/apps/{app}/deployments/{dep}/release", s.handleRelease).Methods(http.MethodPost)
	authed.HandleFunc("/apps/{app}/deployments/{dep}/release", s.handleUpdateRelease).Methods(http.MethodPatch)
	authed.HandleFunc("/apps/{app}/deployments/{src}/promote/{dst}", s.handlePromote).Methods(http.MethodPost)
	authed.HandleFunc("/apps/{app}/deployments/{dep}/rollback/{target}", s.handleRollback).Methods(http.MethodPost)
	authed.HandleFunc("/apps/{app}/deployments/{dep}/rollback", s.handleRollback).Methods(http.MethodPost)
	authed.HandleFunc("/apps/{app}/deployments/{dep}/metrics", s.handleDeploymentMetrics).Methods(http.MethodGet)
	authed.HandleFunc("/apps/{app}/deployments/{dep}/history", s.handleDeploymentHistory).Methods(http.MethodGet)

	authed.HandleFunc("/accessKeys", s.handleListAccessKeys).Methods(http.MethodGet)
	authed.HandleFunc("/accessKeys", s.handleCreateAccessKey).Methods(http.MethodPost)
	authed.HandleFunc("/accessKeys/{id}", s.handleRemoveAccessKey).Methods(http.MethodDelete)
}

type contextKey string

const accountIDKey contextKey = "accountID"

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, err := s.Identity.Resolve(r.Context(), r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAccountID(r.Context(), accountID)))
	})
}

// writeError renders err as JSON with the status its apierrors.Kind maps
// to; this is the one place in the package that performs that mapping.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := apierrors.KindOf(err)
	s.Log.Warn("request failed", "kind", kind.String(), "error", err.Error())
	s.writeJSON(w, kind.HTTPStatus(), map[string]string{"message": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}
