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
	"io"
	"net/http"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/release"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

const maxReleaseBodyBytes = 200 << 20 // 200MiB, generous for a JS bundle plus assets

type packageInfo struct {
	AppVersion  string `json:"appVersion"`
	Description string `json:"description"`
	IsMandatory bool   `json:"isMandatory"`
	IsDisabled  bool   `json:"isDisabled"`
	Rollout     *int32 `json:"rollout"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	app, err := s.requireApp(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	accountID := accountIDFromContext(r.Context())
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountID, store.PermissionCollaborator); err != nil {
		s.writeError(w, err)
		return
	}
	dep, err := s.requireDeployment(r, app, pathVar(r, "dep"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxReleaseBodyBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, apierrors.Wrap(apierrors.TooLarge, err, "release: parse multipart body"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("package")
	if err != nil {
		s.writeError(w, apierrors.Wrap(apierrors.Invalid, err, "release: missing package part"))
		return
	}
	defer file.Close()
	zipBytes, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, apierrors.Wrap(apierrors.Invalid, err, "release: read package part"))
		return
	}

	var info packageInfo
	if raw := r.FormValue("packageInfo"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			s.writeError(w, apierrors.Wrap(apierrors.Invalid, err, "release: decode packageInfo"))
			return
		}
	}
	if info.AppVersion == "" {
		s.writeError(w, apierrors.New(apierrors.Invalid, "release: packageInfo.appVersion is required"))
		return
	}

	pkg, err := s.Release.CommitPackage(r.Context(), app.ID, *dep, release.CommitInput{
		AppVersion:  info.AppVersion,
		Description: info.Description,
		IsMandatory: info.IsMandatory,
		IsDisabled:  info.IsDisabled,
		Rollout:     info.Rollout,
		ZipBytes:    zipBytes,
		ReleasedBy:  accountID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]*store.Package{"package": pkg})
}

type promoteRequest struct {
	IsDisabled  *bool   `json:"isDisabled"`
	IsMandatory *bool   `json:"isMandatory"`
	Description *string `json:"description"`
	Rollout     *int32  `json:"rollout"`
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	app, err := s.requireApp(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	accountID := accountIDFromContext(r.Context())
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountID, store.PermissionCollaborator); err != nil {
		s.writeError(w, err)
		return
	}
	src, err := s.requireDeployment(r, app, pathVar(r, "src"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	dst, err := s.requireDeployment(r, app, pathVar(r, "dst"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req promoteRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, apierrors.Wrap(apierrors.Invalid, err, "promote: decode body"))
			return
		}
	}

	pkg, err := s.Release.Promote(r.Context(), *src, *dst, release.PromoteOverrides{
		IsDisabled:  req.IsDisabled,
		IsMandatory: req.IsMandatory,
		Description: req.Description,
		Rollout:     req.Rollout,
	}, accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]*store.Package{"package": pkg})
}

type updateReleaseRequest struct {
	Label       string  `json:"label"`
	AppVersion  *string `json:"appVersion"`
	Description *string `json:"description"`
	IsDisabled  *bool   `json:"isDisabled"`
	IsMandatory *bool   `json:"isMandatory"`
	Rollout     *int32  `json:"rollout"`
}

func (s *Server) handleUpdateRelease(w http.ResponseWriter, r *http.Request) {
	app, err := s.requireApp(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	accountID := accountIDFromContext(r.Context())
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountID, store.PermissionCollaborator); err != nil {
		s.writeError(w, err)
		return
	}
	dep, err := s.requireDeployment(r, app, pathVar(r, "dep"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req updateReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apierrors.Wrap(apierrors.Invalid, err, "release: decode body"))
		return
	}

	label := req.Label
	if label == "" {
		history, err := s.Store.PackageHistory(r.Context(), dep.ID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if len(history) == 0 {
			s.writeError(w, apierrors.New(apierrors.NotFound, "release: deployment %q has no releases", dep.Name))
			return
		}
		label = history[len(history)-1].Label
	}

	if err := s.Release.UpdateRelease(r.Context(), *dep, label, store.UpdatePackageFields{
		AppVersion:  req.AppVersion,
		Description: req.Description,
		IsDisabled:  req.IsDisabled,
		IsMandatory: req.IsMandatory,
		Rollout:     req.Rollout,
	}); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	app, err := s.requireApp(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	accountID := accountIDFromContext(r.Context())
	if _, err := s.Guard.RequirePermission(r.Context(), app.ID, accountID, store.PermissionCollaborator); err != nil {
		s.writeError(w, err)
		return
	}
	dep, err := s.requireDeployment(r, app, pathVar(r, "dep"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	pkg, err := s.Release.Rollback(r.Context(), *dep, pathVar(r, "target"), accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]*store.Package{"package": pkg})
}
