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
	"github.com/yplabs-ltd/codepush-server/internal/codepush"
	"github.com/yplabs-ltd/codepush-server/internal/store"
)

func (s *Server) handleListAccessKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.Store.ListAccessKeys(r.Context(), accountIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]store.AccessKey{"accessKeys": access.MaskAccessKeys(keys)})
}

type createAccessKeyRequest struct {
	FriendlyName string `json:"friendlyName"`
	TTLDays      int    `json:"ttl"`
}

func (s *Server) handleCreateAccessKey(w http.ResponseWriter, r *http.Request) {
	var req createAccessKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FriendlyName == "" {
		s.writeError(w, apierrors.New(apierrors.Invalid, "accessKeys: friendlyName is required"))
		return
	}
	ttl := 60 * 24 * time.Hour
	if req.TTLDays > 0 {
		ttl = time.Duration(req.TTLDays) * 24 * time.Hour
	}
	token, err := codepush.GenerateAccessKey()
	if err != nil {
		s.writeError(w, apierrors.Wrap(apierrors.Internal, err, "accessKeys: generate token"))
		return
	}
	accountID := accountIDFromContext(r.Context())
	key := store.AccessKey{
		ID:           uuid.New().String(),
		AccountID:    accountID,
		Name:         token,
		FriendlyName: req.FriendlyName,
		CreatedBy:    accountID,
		CreatedTime:  time.Now(),
		Expires:      time.Now().Add(ttl),
	}
	if err := s.Store.CreateAccessKey(r.Context(), key); err != nil {
		s.writeError(w, err)
		return
	}
	// Unlike the list endpoint, the creation response includes the raw
	// token once: it is the only time the caller can retrieve it.
	s.writeJSON(w, http.StatusCreated, map[string]store.AccessKey{"accessKey": key})
}

func (s *Server) handleRemoveAccessKey(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	if err := s.Store.RemoveAccessKey(r.Context(), accountID, pathVar(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
