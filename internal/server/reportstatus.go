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

	"github.com/yplabs-ltd/codepush-server/internal/apierrors"
	"github.com/yplabs-ltd/codepush-server/internal/metrics"
)

type deployStatusRequest struct {
	DeploymentKey             string `json:"deploymentKey"`
	Label                     string `json:"label"`
	Status                    string `json:"status"`
	ClientUniqueID            string `json:"clientUniqueId"`
	PreviousLabelOrAppVersion string `json:"previousLabelOrAppVersion"`
	PreviousDeploymentKey     string `json:"previousDeploymentKey"`
}

func (s *Server) handleReportDeployStatus(w http.ResponseWriter, r *http.Request) {
	var req deployStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apierrors.Wrap(apierrors.Invalid, err, "reportStatus/deploy: decode body"))
		return
	}
	if req.DeploymentKey == "" || req.Label == "" {
		s.writeError(w, apierrors.New(apierrors.Invalid, "reportStatus/deploy: deploymentKey and label are required"))
		return
	}

	status := metrics.DeploymentStatus(req.Status)
	if status == "" {
		status = metrics.StatusSucceeded
	}

	switch {
	case status == metrics.StatusSucceeded && req.PreviousDeploymentKey != "" && req.PreviousDeploymentKey != req.DeploymentKey:
		// The device's active count still lives on the deployment key it
		// moved away from; reconcile that before recording status there.
		if req.PreviousLabelOrAppVersion != "" {
			if err := s.Metrics.DeactivateLabel(r.Context(), req.PreviousDeploymentKey, req.PreviousLabelOrAppVersion); err != nil {
				s.writeError(w, err)
				return
			}
		}
		if err := s.Metrics.RecordDeploymentStatus(r.Context(), req.DeploymentKey, req.Label, status, req.ClientUniqueID); err != nil {
			s.writeError(w, err)
			return
		}
	case status == metrics.StatusSucceeded && req.PreviousLabelOrAppVersion != "" && req.PreviousLabelOrAppVersion != req.Label:
		// Same deployment, different label: move the active count rather
		// than incrementing it a second time on top of the old label's.
		if err := s.Metrics.RecordDeployment(r.Context(), req.DeploymentKey, req.Label, req.ClientUniqueID, req.PreviousLabelOrAppVersion); err != nil {
			s.writeError(w, err)
			return
		}
	default:
		if err := s.Metrics.RecordDeploymentStatus(r.Context(), req.DeploymentKey, req.Label, status, req.ClientUniqueID); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type downloadReportRequest struct {
	DeploymentKey  string `json:"deploymentKey"`
	Label          string `json:"label"`
	ClientUniqueID string `json:"clientUniqueId"`
}

func (s *Server) handleReportDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apierrors.Wrap(apierrors.Invalid, err, "reportStatus/download: decode body"))
		return
	}
	if req.DeploymentKey == "" || req.Label == "" {
		s.writeError(w, apierrors.New(apierrors.Invalid, "reportStatus/download: deploymentKey and label are required"))
		return
	}
	if err := s.Metrics.RecordDownload(r.Context(), req.DeploymentKey, req.Label); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
