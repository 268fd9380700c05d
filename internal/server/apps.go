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

	"github.com/yplabs-ltd/codepush-server/internal/access"
	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.Store.ListApps(r.Context(), accountIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if apps == nil {
		apps = []store.App{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]store.App{"apps": apps})
}

type createAppRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateApp(w http.ResponseWriter, r *http.Request) {
	var req createAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeError(w, apierrors.New(apierrors.Invalid, "apps: name is required"))
		return
	}
	accountID := accountIDFromContext(r.Context())
	app := store.App{ID: uuid.New().String(), AccountID: accountID, Name: req.Name, CreatedTime: time.Now()}
	if err := s.Store.AddApp(r.Context(), accountID, app); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/apps/"+app.Name)
	s.writeJSON(w, http.StatusCreated, map[string]store.App{"app": app})
}

func (s *Server) handleGetApp(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	app, err := s.Store.GetApp(r.Context(), accountID, pathVar(r, "app"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountID, store.PermissionCollaborator); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]store.App{"app": *app})
}

func (s *Server) handleRemoveApp(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	app, err := s.Store.GetApp(r.Context(), accountID, pathVar(r, "app"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountID, store.PermissionOwner); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Store.RemoveApp(r.Context(), app.ID); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Blob.DeletePath(r.Context(), "apps/"+app.ID); err != nil {
		s.Log.Warn("failed to clean up blobs for removed app", "app", app.ID, "error", err.Error())
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransferApp(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	app, err := s.Store.GetApp(r.Context(), accountID, pathVar(r, "app"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountID, store.PermissionOwner); err != nil {
		s.writeError(w, err)
		return
	}
	targetID, err := s.Store.UpsertAccountByEmail(r.Context(), pathVar(r, "email"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Store.TransferApp(r.Context(), app.ID, targetID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	app, err := s.Store.GetApp(r.Context(), accountID, pathVar(r, "app"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountID, store.PermissionOwner); err != nil {
		s.writeError(w, err)
		return
	}
	targetID, err := s.Store.UpsertAccountByEmail(r.Context(), pathVar(r, "email"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Store.AddCollaborator(r.Context(), app.ID, targetID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	app, err := s.Store.GetApp(r.Context(), accountID, pathVar(r, "app"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountID, store.PermissionCollaborator); err != nil {
		s.writeError(w, err)
		return
	}
	target, err := s.Store.GetAccountByEmail(r.Context(), pathVar(r, "email"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	collaborators, err := s.Store.ListCollaborators(r.Context(), app.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	for _, c := range collaborators {
		if c.AccountID != target.ID {
			continue
		}
		if err := access.CanRemoveCollaborator(c, accountID); err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.Store.RemoveCollaborator(r.Context(), app.ID, target.ID); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeError(w, apierrors.New(apierrors.NotFound, "apps: %q is not a collaborator on this app", pathVar(r, "email")))
}
