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
	"net/http"

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/resolve"
)

type updateCheckResponse struct {
	IsAvailable            bool   `json:"isAvailable"`
	IsMandatory            bool   `json:"isMandatory,omitempty"`
	AppVersion             string `json:"appVersion,omitempty"`
	PackageHash            string `json:"packageHash,omitempty"`
	Label                  string `json:"label,omitempty"`
	PackageSize            int64  `json:"packageSize,omitempty"`
	Description            string `json:"description,omitempty"`
	DownloadURL            string `json:"downloadURL,omitempty"`
	ShouldRunBinaryVersion bool   `json:"shouldRunBinaryVersion,omitempty"`
	UpdateAppVersion       bool   `json:"updateAppVersion,omitempty"`
}

func fromQuery(r *http.Request) resolve.Query {
	q := r.URL.Query()
	return resolve.Query{
		DeploymentKey:  q.Get("deploymentKey"),
		AppVersion:     q.Get("appVersion"),
		PackageHash:    q.Get("packageHash"),
		Label:          q.Get("label"),
		ClientUniqueID: q.Get("clientUniqueId"),
		IsCompanion:    q.Get("isCompanion") == "true",
	}
}

func renderUpdateCheck(info *resolve.UpdateInfo) updateCheckResponse {
	return updateCheckResponse{
		IsAvailable:            info.IsAvailable,
		IsMandatory:            info.IsMandatory,
		AppVersion:             info.AppVersion,
		PackageHash:            info.PackageHash,
		Label:                  info.Label,
		PackageSize:            info.PackageSize,
		Description:            info.Description,
		DownloadURL:            info.DownloadURL,
		ShouldRunBinaryVersion: info.ShouldRunBinaryVersion,
		UpdateAppVersion:       info.UpdateAppVersion,
	}
}

func (s *Server) handleUpdateCheck(w http.ResponseWriter, r *http.Request) {
	q := fromQuery(r)
	if q.DeploymentKey == "" || q.AppVersion == "" {
		s.writeError(w, apierrors.New(apierrors.Invalid, "updateCheck: deploymentKey and appVersion are required"))
		return
	}

	info, err := s.Resolver.Resolve(r.Context(), q)
	if err != nil {
		if apierrors.KindOf(err) == apierrors.NotFound {
			s.writeError(w, err)
			return
		}
		// Any other failure (object-store hiccup, transient DB error) degrades
		// to "no update" rather than a 5xx: client SDKs loop on failures and a
		// 200 response keeps them on their current, working bundle.
		s.writeJSON(w, http.StatusOK, map[string]updateCheckResponse{
			"updateInfo": {IsAvailable: false},
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]updateCheckResponse{"updateInfo": renderUpdateCheck(info)})
}

type updateCheckResponseLegacy struct {
	IsAvailable            bool   `json:"is_available"`
	IsMandatory            bool   `json:"is_mandatory,omitempty"`
	AppVersion             string `json:"target_binary_range,omitempty"`
	PackageHash            string `json:"package_hash,omitempty"`
	Label                  string `json:"label,omitempty"`
	PackageSize            int64  `json:"package_size,omitempty"`
	Description            string `json:"description,omitempty"`
	DownloadURL            string `json:"download_url,omitempty"`
	ShouldRunBinaryVersion bool   `json:"should_run_binary_version,omitempty"`
	UpdateAppVersion       bool   `json:"update_app_version,omitempty"`
}

func renderUpdateCheckLegacy(info *resolve.UpdateInfo) updateCheckResponseLegacy {
	return updateCheckResponseLegacy{
		IsAvailable:            info.IsAvailable,
		IsMandatory:            info.IsMandatory,
		AppVersion:             info.AppVersion,
		PackageHash:            info.PackageHash,
		Label:                  info.Label,
		PackageSize:            info.PackageSize,
		Description:            info.Description,
		DownloadURL:            info.DownloadURL,
		ShouldRunBinaryVersion: info.ShouldRunBinaryVersion,
		UpdateAppVersion:       info.UpdateAppVersion,
	}
}

// handleUpdateCheckLegacy is the snake_case CodePush-SDK-compatible route.
// Unlike handleUpdateCheck it never surfaces a storage failure as anything
// but is_available:false, matching the legacy SDK's lack of error handling.
func (s *Server) handleUpdateCheckLegacy(w http.ResponseWriter, r *http.Request) {
	q := fromQuery(r)
	if q.DeploymentKey == "" || q.AppVersion == "" {
		s.writeJSON(w, http.StatusOK, map[string]updateCheckResponseLegacy{
			"update_info": {IsAvailable: false},
		})
		return
	}

	info, err := s.Resolver.Resolve(r.Context(), q)
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]updateCheckResponseLegacy{
			"update_info": {IsAvailable: false},
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]updateCheckResponseLegacy{"update_info": renderUpdateCheckLegacy(info)})
}
