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

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/codepush"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

func (s *Server) requireApp(r *http.Request) (*store.App, error) {
	return s.Store.GetApp(r.Context(), accountIDFromContext(r.Context()), pathVar(r, "app"))
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	app, err := s.requireApp(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountIDFromContext(r.Context()), store.PermissionCollaborator); err != nil {
		s.writeError(w, err)
		return
	}
	deployments, err := s.Store.ListDeployments(r.Context(), app.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]store.Deployment{"deployments": deployments})
}

type createDeploymentRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	app, err := s.requireApp(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountIDFromContext(r.Context()), store.PermissionCollaborator); err != nil {
		s.writeError(w, err)
		return
	}
	var req createDeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeError(w, apierrors.New(apierrors.Invalid, "deployments: name is required"))
		return
	}
	key, err := codepush.GenerateDeploymentKey()
	if err != nil {
		s.writeError(w, apierrors.Wrap(apierrors.Internal, err, "deployments: generate key"))
		return
	}
	dep := store.Deployment{
		ID:          uuid.New().String(),
		AppID:       app.ID,
		Name:        req.Name,
		Key:         key,
		CreatedTime: time.Now(),
	}
	if err := s.Store.CreateDeployment(r.Context(), dep); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]store.Deployment{"deployment": dep})
}

func (s *Server) requireDeployment(r *http.Request, app *store.App, name string) (*store.Deployment, error) {
	return s.Store.GetDeploymentByName(r.Context(), app.ID, name)
}

type renameDeploymentRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRenameDeployment(w http.ResponseWriter, r *http.Request) {
	app, err := s.requireApp(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountIDFromContext(r.Context()), store.PermissionCollaborator); err != nil {
		s.writeError(w, err)
		return
	}
	dep, err := s.requireDeployment(r, app, pathVar(r, "dep"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req renameDeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeError(w, apierrors.New(apierrors.Invalid, "deployments: name is required"))
		return
	}
	if err := s.Store.RenameDeployment(r.Context(), dep.ID, req.Name); err != nil {
		s.writeError(w, err)
		return
	}
	dep.Name = req.Name
	s.writeJSON(w, http.StatusOK, map[string]*store.Deployment{"deployment": dep})
}

func (s *Server) handleRemoveDeployment(w http.ResponseWriter, r *http.Request) {
	app, err := s.requireApp(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountIDFromContext(r.Context()), store.PermissionOwner); err != nil {
		s.writeError(w, err)
		return
	}
	dep, err := s.requireDeployment(r, app, pathVar(r, "dep"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Store.RemoveDeployment(r.Context(), dep.ID); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Blob.DeletePath(r.Context(), "apps/"+app.ID+"/deployments/"+dep.ID); err != nil {
		s.Log.Warn("failed to clean up blobs for removed deployment", "deployment", dep.ID, "error", err.Error())
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeploymentMetrics(w http.ResponseWriter, r *http.Request) {
	app, err := s.requireApp(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountIDFromContext(r.Context()), store.PermissionCollaborator); err != nil {
		s.writeError(w, err)
		return
	}
	dep, err := s.requireDeployment(r, app, pathVar(r, "dep"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	summary, err := s.Metrics.Summarize(r.Context(), dep.Key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"metrics": summary})
}

func (s *Server) handleDeploymentHistory(w http.ResponseWriter, r *http.Request) {
	app, err := s.requireApp(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountIDFromContext(r.Context()), store.PermissionCollaborator); err != nil {
		s.writeError(w, err)
		return
	}
	dep, err := s.requireDeployment(r, app, pathVar(r, "dep"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	history, err := s.Store.PackageHistory(r.Context(), dep.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]store.Package{"history": history})
}
